// Package system detects the host distribution, its package manager and the installed GPU.
package system

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
)

const Unknown = "unknown"

// PackageManager identifies a distribution's package manager
type PackageManager string

const (
	Pacman PackageManager = "pacman"
	Apt    PackageManager = "apt"
	Dnf    PackageManager = "dnf"
	Zypper PackageManager = "zypper"
	Apk    PackageManager = "apk"
	Nix    PackageManager = "nix"
	Xbps   PackageManager = "xbps"
	Emerge PackageManager = "emerge"
)

var distroManagers = map[string]PackageManager{
	"arch":                Pacman,
	"endeavouros":         Pacman,
	"manjaro":             Pacman,
	"artix":               Pacman,
	"cachyos":             Pacman,
	"garuda":              Pacman,
	"debian":              Apt,
	"ubuntu":              Apt,
	"mint":                Apt,
	"linuxmint":           Apt,
	"pop":                 Apt,
	"pop!_os":             Apt,
	"kali":                Apt,
	"elementary":          Apt,
	"zorin":               Apt,
	"fedora":              Dnf,
	"rhel":                Dnf,
	"centos":              Dnf,
	"rocky":               Dnf,
	"almalinux":           Dnf,
	"opensuse":            Zypper,
	"suse":                Zypper,
	"opensuse-tumbleweed": Zypper,
	"opensuse-leap":       Zypper,
	"alpine":              Apk,
	"nixos":               Nix,
	"void":                Xbps,
	"gentoo":              Emerge,
}

// PackageManagerFor maps a distribution ID to its package manager. Unknown distributions return "".
func PackageManagerFor(distro string) PackageManager {
	return distroManagers[strings.ToLower(strings.TrimSpace(distro))]
}

// InstallCommand returns the shell command which installs pkgs with pm
func (pm PackageManager) InstallCommand(pkgs ...string) string {
	list := strings.Join(pkgs, " ")
	switch pm {
	case Pacman:
		return "pacman -S --noconfirm " + list
	case Apt:
		return "apt update && apt install -y " + list
	case Dnf:
		return "dnf install -y " + list
	case Zypper:
		return "zypper install -y " + list
	case Apk:
		return "apk add " + list
	case Nix:
		return "nix-env -iA nixpkgs." + strings.Join(pkgs, " nixpkgs.")
	case Xbps:
		return "xbps-install -Sy " + list
	case Emerge:
		return "emerge " + list
	default:
		return ""
	}
}

// ParseOSRelease extracts the ID field of an os-release file
func ParseOSRelease(content string) string {
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "ID=") {
			id := strings.Trim(line[3:], `"'`)
			if id != "" {
				return strings.ToLower(id)
			}
		}
	}

	return Unknown
}

// ParseGPU picks the GPU vendor from lspci output
func ParseGPU(lspci string) string {
	for _, line := range strings.Split(lspci, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "vga") && !strings.Contains(lower, "3d") && !strings.Contains(lower, "display") {
			continue
		}

		switch {
		case strings.Contains(lower, "nvidia"):
			return "nvidia"
		case strings.Contains(lower, "amd") || strings.Contains(lower, "radeon"):
			return "amd"
		case strings.Contains(lower, "intel"):
			return "intel"
		}
	}

	return Unknown
}

// Host describes the machine lingle is running on
type Host struct {
	Distro         string
	GPU            string
	PackageManager PackageManager
}

// Detect inspects /etc/os-release and lspci
func Detect(ctx context.Context) Host {
	host := Host{Distro: Unknown, GPU: Unknown}

	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		api.Log(ctx).Warn().Err(err).Msg("Could not read /etc/os-release")
	} else {
		host.Distro = ParseOSRelease(string(data))
	}
	host.PackageManager = PackageManagerFor(host.Distro)

	if CommandExists("lspci") {
		out, err := exec.CommandContext(ctx, "lspci").Output()
		if err != nil {
			api.Log(ctx).Warn().Err(err).Msg("lspci failed")
		} else {
			host.GPU = ParseGPU(string(out))
		}
	}

	api.Log(ctx).Debug().Str("distro", host.Distro).Str("gpu", host.GPU).Msg("Detected host")
	return host
}

// CommandExists reports whether name can be found in $PATH
func CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// MissingCommands returns the subset of names which aren't in $PATH
func MissingCommands(names ...string) []string {
	missing := make([]string, 0)
	for _, name := range names {
		if !CommandExists(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// IsRoot reports whether lingle runs with uid 0
func IsRoot() bool {
	return os.Geteuid() == 0
}

// HasDisplay reports whether an X11 or Wayland session is reachable
func HasDisplay() bool {
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}

// CurrentUser returns the login name of the user running lingle
func CurrentUser() (string, error) {
	if user := os.Getenv("USER"); user != "" {
		return user, nil
	}

	out, err := exec.Command("id", "-un").Output()
	if err != nil {
		return "", eris.Wrap(err, "Failed to determine the current user")
	}
	return strings.TrimSpace(string(out)), nil
}
