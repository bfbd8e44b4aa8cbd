package install

import (
	"context"
	"strings"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/system"
)

// RequiredCommands are the tools the generated scripts and the waywall build call
var RequiredCommands = []string{"bash", "git", "pkexec", "systemctl", "mountpoint"}

// commandPackages maps commands whose package is named differently
var commandPackages = map[system.PackageManager]map[string]string{
	system.Pacman: {"pkexec": "polkit", "mountpoint": "util-linux"},
	system.Apt:    {"pkexec": "pkexec", "mountpoint": "util-linux"},
	system.Dnf:    {"pkexec": "polkit", "mountpoint": "util-linux"},
	system.Zypper: {"pkexec": "polkit", "mountpoint": "util-linux"},
}

// Deps installs missing commands
type Deps struct {
	Installer *Installer
	// Confirm asks the user whether the missing commands should be installed. It is skipped when the context
	// carries AssumeYes.
	Confirm func(missing []string) bool
	// Lookup defaults to system.MissingCommands
	Lookup func(names ...string) []string
}

func packageFor(pm system.PackageManager, command string) string {
	if pkg, ok := commandPackages[pm][command]; ok {
		return pkg
	}
	return command
}

// EnsureDeps installs every command in names which isn't available yet. It returns the installed commands.
func (d *Deps) EnsureDeps(ctx context.Context, names ...string) ([]string, error) {
	lookup := d.Lookup
	if lookup == nil {
		lookup = system.MissingCommands
	}

	missing := lookup(names...)
	if len(missing) == 0 {
		api.Log(ctx).Debug().Strs("commands", names).Msg("All dependencies are available")
		return missing, nil
	}

	if !api.AssumeYes(ctx) && (d.Confirm == nil || !d.Confirm(missing)) {
		return nil, exitcode.Errorf(exitcode.Dependency, "Missing dependencies: %s", strings.Join(missing, ", "))
	}

	pm := d.Installer.Host.PackageManager
	if pm == "" {
		return nil, exitcode.New(exitcode.Dependency, "Could not detect package manager.")
	}

	pkgs := make([]string, len(missing))
	for idx, name := range missing {
		pkgs[idx] = packageFor(pm, name)
	}

	err := d.Installer.elevated(ctx, pm.InstallCommand(pkgs...), "Installing "+strings.Join(pkgs, ", "))
	if err != nil {
		return nil, err
	}

	api.Log(ctx).Info().Strs("packages", pkgs).Msg("Dependencies installed successfully")
	return missing, nil
}
