package install

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/runner"
	"github.com/Flammable-Bunny/Lingle/pkg/system"
)

const (
	WaywallRepo       = "https://github.com/ByPaco10/waywall"
	WaywallConfigRepo = "https://github.com/flammable-bunny/lingle_waywall_generic_config.git"
	pacurInstall      = "export PATH=$PATH:$HOME/go/bin && go install github.com/pacur/pacur@latest"
	pacurSed          = "s/su podman/podman/g; s/sudo podman/podman/g; s/sudo docker/docker/g"
)

// pacur only has to build containers for the targets waywall is packaged for
var pacurTargets = map[string]bool{
	"archlinux":     true,
	"fedora-42":     true,
	"debian-trixie": true,
}

type waywallPackage struct {
	flag    string
	file    string
	command string
}

var waywallPackages = map[system.PackageManager]waywallPackage{
	system.Pacman: {"--arch", "waywall-0.5-1-x86_64.pkg.tar.zst", "pacman -U --noconfirm"},
	system.Dnf:    {"--fedora", "waywall-0.5-1.fc42.x86_64.rpm", "dnf localinstall -y"},
	system.Apt:    {"--debian", "waywall_0.5-1_amd64.deb", "dpkg -i"},
}

// findPacur returns the newest pacur checkout in the Go module cache
func findPacur(home string) (string, error) {
	base := filepath.Join(home, "go", "pkg", "mod", "github.com", "pacur")
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", withCode(CodePacurDirNotFound, eris.Wrap(err, "Pacur directory not found"))
	}

	versions := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "pacur@") {
			versions = append(versions, entry.Name())
		}
	}
	if len(versions) == 0 {
		return "", withCode(CodePacurVersion, eris.New("Pacur version not found"))
	}

	sort.Strings(versions)
	return filepath.Join(base, versions[len(versions)-1]), nil
}

// preparePacur removes unneeded container targets and strips sudo from pacur's scripts. Module cache files are
// read-only for the user.
func (i *Installer) preparePacur(ctx context.Context, dockerDir string) error {
	entries, err := os.ReadDir(dockerDir)
	if err != nil {
		return withCode(CodePacurDirNotFound, eris.Wrapf(err, "Failed to list %s", dockerDir))
	}

	remove := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() && !pacurTargets[entry.Name()] {
			remove = append(remove, filepath.Join(dockerDir, entry.Name()))
		}
	}

	script := ""
	if len(remove) > 0 {
		script = "rm -rf " + runner.QuoteAll(remove...) + " && "
	}
	script += "cd " + runner.Quote(dockerDir) + " && sed -i " + runner.Quote(pacurSed) + " update.sh build.sh"

	res, err := i.Runner.RunElevated(ctx, script)
	if err != nil {
		return err
	}
	if !res.OK() {
		api.Log(ctx).Warn().Int("exit", res.ExitCode).Msg("Preparing pacur failed, continuing anyway")
	}
	return nil
}

func (i *Installer) buildWaywall(ctx context.Context, pm system.PackageManager, prog *progress) error {
	ctx = api.WithTask(ctx, "waywall")
	home := api.PathsFrom(ctx).Home

	prog.next(ctx, "Downloading pacur")
	err := i.run(ctx, runner.Cmd{Name: "bash", Args: []string{"-c", pacurInstall}}, "go install pacur")
	if err != nil {
		return withCode(CodePacurInstall, err)
	}

	pacurDir, err := findPacur(home)
	if err != nil {
		return err
	}

	prog.next(ctx, "Preparing pacur environment")
	dockerDir := filepath.Join(pacurDir, "docker")
	err = i.preparePacur(ctx, dockerDir)
	if err != nil {
		return err
	}

	prog.next(ctx, "Building pacur containers")
	err = i.run(ctx, runner.Cmd{Name: "bash", Args: []string{filepath.Join(dockerDir, "update.sh")}, Dir: dockerDir},
		"update.sh")
	if err != nil {
		return withCode(CodeUpdateScript, err)
	}

	err = i.run(ctx, runner.Cmd{Name: "bash", Args: []string{filepath.Join(dockerDir, "build.sh")}, Dir: dockerDir},
		"build.sh")
	if err != nil {
		return withCode(CodeBuildScript, err)
	}

	prog.next(ctx, "Cloning waywall")
	srcDir := filepath.Join(home, "waywall")
	err = os.RemoveAll(srcDir)
	if err != nil {
		return withCode(CodeWaywallClone, eris.Wrapf(err, "Failed to remove %s", srcDir))
	}

	err = i.run(ctx, runner.Cmd{Name: "git", Args: []string{"clone", WaywallRepo, srcDir}}, "git clone")
	if err != nil {
		return withCode(CodeWaywallClone, err)
	}

	prog.next(ctx, "Building waywall packages")
	pkg, ok := waywallPackages[pm]
	if !ok {
		return withCode(CodeUnsupportedDistro, eris.Errorf("Unsupported package manager: %s", pm))
	}

	buildScript := filepath.Join(srcDir, "build-packages.sh")
	if _, err := os.Stat(buildScript); err != nil {
		return withCode(CodeWaywallBuild, eris.Wrap(err, "build-packages.sh not found"))
	}

	err = i.run(ctx, runner.Cmd{Name: "bash", Args: []string{buildScript, pkg.flag}, Dir: srcDir}, "build-packages.sh")
	if err != nil {
		return withCode(CodeWaywallBuild, err)
	}

	prog.next(ctx, "Installing waywall package")
	pkgFile := filepath.Join(srcDir, "waywall-build", pkg.file)
	if _, err := os.Stat(pkgFile); err != nil {
		return withCode(CodeWaywallBuild, eris.Wrapf(err, "Package file %s not found", pkg.file))
	}

	err = i.elevated(ctx, pkg.command+" "+runner.Quote(pkgFile), "Installing "+pkg.file)
	if err != nil {
		return withCode(CodeWaywallPkgInstall, err)
	}

	prog.next(ctx, "Waywall installation complete")
	cfgDir := api.PathsFrom(ctx).WaywallDir()
	if _, err := os.Stat(cfgDir); os.IsNotExist(err) {
		err = os.MkdirAll(filepath.Dir(cfgDir), 0755)
		if err == nil {
			err = i.run(ctx, runner.Cmd{Name: "git", Args: []string{"clone", WaywallConfigRepo, cfgDir}}, "git clone")
		}
		if err != nil {
			api.Log(ctx).Warn().Err(err).Msg("Could not fetch the generic waywall config")
		}
	}

	return nil
}
