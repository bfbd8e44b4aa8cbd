package install

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/runner"
	"github.com/Flammable-Bunny/Lingle/pkg/scripts"
	"github.com/Flammable-Bunny/Lingle/pkg/system"
)

var fedoraWaywallDeps = []string{
	"xorg-x11-server-Xorg", "plasma-workspace-x11", "egl-wayland",
	"mesa-libEGL", "mesa-libGLES", "luajit", "libspng",
	"libwayland-client", "libwayland-server", "libwayland-cursor", "libwayland-egl",
	"libxcb", "libxkbcommon",
}

const rpmFusion = "dnf install -y " +
	"https://mirrors.rpmfusion.org/free/fedora/rpmfusion-free-release-$(rpm -E %fedora).noarch.rpm " +
	"https://mirrors.rpmfusion.org/nonfree/fedora/rpmfusion-nonfree-release-$(rpm -E %fedora).noarch.rpm"

func isNvidia(gpu string) bool {
	return strings.Contains(strings.ToLower(gpu), "nvidia")
}

type elevatedStep struct {
	what   string
	script string
}

func (i *Installer) runSteps(ctx context.Context, steps []elevatedStep) error {
	for _, step := range steps {
		err := i.elevated(ctx, step.script, step.what)
		if err != nil {
			return err
		}
	}
	return nil
}

func (i *Installer) fedoraDependencies(ctx context.Context) error {
	steps := []elevatedStep{
		{"System upgrade", "dnf upgrade -y"},
		{"Enabling RPM Fusion", rpmFusion},
		{"Installing waywall dependencies", system.Dnf.InstallCommand(fedoraWaywallDeps...)},
	}
	if isNvidia(i.Host.GPU) {
		steps = append(steps, elevatedStep{"Installing akmod-nvidia", system.Dnf.InstallCommand("akmod-nvidia")})
	}

	return i.runSteps(ctx, steps)
}

func (i *Installer) prismCopr(ctx context.Context) error {
	return i.runSteps(ctx, []elevatedStep{
		{"Enabling the Prism Launcher COPR", "dnf copr enable -y g3tchoo/prismlauncher"},
		{"Installing Prism Launcher", system.Dnf.InstallCommand("prismlauncher", "java-21-openjdk")},
	})
}

func (i *Installer) debounce(ctx context.Context, _ system.PackageManager, _ *Entry) error {
	script := "mkdir -p /etc/libinput\ncat > " + runner.Quote(scripts.DebounceQuirksPath) + " <<'ENDHERE'\n" +
		scripts.DebounceQuirks() + "ENDHERE\n"
	err := runner.ValidateScript("debounce.sh", script)
	if err != nil {
		return err
	}
	return i.elevated(ctx, script, "Writing "+scripts.DebounceQuirksPath)
}

// distroPackages installs the packages listed for entry with pm
func (i *Installer) distroPackages(ctx context.Context, pm system.PackageManager, entry *Entry) error {
	pkgs, ok := entry.PackagesFor(pm)
	if !ok || len(pkgs) == 0 {
		return eris.Errorf("Unsupported package manager: %s", pm)
	}
	return i.elevated(ctx, pm.InstallCommand(pkgs...), "Installing "+entry.Name)
}

func (i *Installer) nvidia(ctx context.Context, pm system.PackageManager, entry *Entry) error {
	if !isNvidia(i.Host.GPU) {
		return eris.New("NVIDIA GPU not detected. This feature is only for NVIDIA users.")
	}
	return i.distroPackages(ctx, pm, entry)
}
