package install

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/fetch"
	"github.com/Flammable-Bunny/Lingle/pkg/runner"
	"github.com/Flammable-Bunny/Lingle/pkg/system"
)

const (
	chaoticKey     = "3056513887B78AEB"
	chaoticMirror  = "https://cdn-mirror.chaotic.cx/chaotic-aur/"
	chaoticSection = "[chaotic-aur]"
	chaoticInclude = "Include = /etc/pacman.d/chaotic-mirrorlist"
	pipeWirePlugin = "linux-pipewire-audio"
	aurPlugin      = "obs-pipewire-audio-capture-git"
)

var pipeWirePackages = map[system.PackageManager]string{
	system.Pacman: "pacman -S --noconfirm wireplumber pipewire pipewire-pulse pipewire-alsa pipewire-jack",
	system.Dnf:    "dnf install -y wireplumber pipewire pipewire-pulseaudio pipewire-alsa pipewire-jack-audio-connection-kit",
	system.Apt: "apt install -y wireplumber pipewire pipewire-pulse-session-manager pipewire-audio-client-libraries " +
		"pipewire-jack",
}

// InsertChaoticAUR adds the chaotic-aur repository to a pacman.conf. The section goes right behind [multilib]
// (before the next section header) or to the end of the file. changed is false if the repository is already
// configured.
func InsertChaoticAUR(conf string) (result string, changed bool) {
	lines := strings.Split(strings.TrimSuffix(conf, "\n"), "\n")
	for _, line := range lines {
		if strings.TrimSpace(line) == chaoticSection {
			return conf, false
		}
	}

	block := []string{"", chaoticSection, chaoticInclude}
	out := make([]string, 0, len(lines)+len(block)+1)
	inMultilib := false
	added := false

	for idx, line := range lines {
		out = append(out, line)
		if strings.TrimSpace(line) == "[multilib]" {
			inMultilib = true
		}

		if inMultilib && !added && idx+1 < len(lines) {
			next := strings.TrimSpace(lines[idx+1])
			if strings.HasPrefix(next, "[") && next != "[multilib]" {
				out = append(out, block...)
				added = true
			}
		}
	}

	if !added {
		out = append(out, block...)
	}
	return strings.Join(out, "\n") + "\n", true
}

func (i *Installer) addChaoticRepo(ctx context.Context) error {
	confPath := i.pacmanConf()
	data, err := os.ReadFile(confPath)
	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to read %s", confPath))
	}

	content, changed := InsertChaoticAUR(string(data))
	if !changed {
		api.Log(ctx).Info().Msg("Chaotic-AUR already exists in pacman.conf")
		return nil
	}

	tmp, err := os.CreateTemp("", "pacman-*.conf")
	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrap(err, "Failed to create temporary pacman.conf"))
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.WriteString(content)
	if err == nil {
		err = tmp.Close()
	}
	if err != nil {
		tmp.Close()
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to write %s", tmp.Name()))
	}

	return i.elevated(ctx, "install -m 0644 "+runner.QuoteAll(tmp.Name(), confPath), "Updating "+confPath)
}

func (i *Installer) chaoticOBS(ctx context.Context) error {
	err := i.runSteps(ctx, []elevatedStep{
		{"Receiving the Chaotic-AUR key", "pacman-key --recv-key " + chaoticKey + " --keyserver keyserver.ubuntu.com"},
		{"Signing the Chaotic-AUR key", "pacman-key --lsign-key " + chaoticKey},
		{"Installing chaotic-keyring", "pacman -U --noconfirm " + runner.Quote(chaoticMirror+"chaotic-keyring.pkg.tar.zst")},
		{"Installing chaotic-mirrorlist", "pacman -U --noconfirm " + runner.Quote(chaoticMirror+"chaotic-mirrorlist.pkg.tar.zst")},
	})
	if err != nil {
		return err
	}

	err = i.addChaoticRepo(ctx)
	if err != nil {
		return err
	}

	err = i.runSteps(ctx, []elevatedStep{
		{"Updating the system", "pacman -Syu --noconfirm"},
		{"Installing OBS Studio", "pacman -S --noconfirm chaotic-aur/obs-studio-stable"},
	})
	if err != nil {
		return err
	}

	for _, helper := range []string{"yay", "paru"} {
		err = i.run(ctx, runner.Cmd{Name: helper, Args: []string{"-S", "--noconfirm", aurPlugin}}, helper)
		if err == nil {
			return nil
		}
		api.Log(ctx).Debug().Err(err).Msgf("%s could not install %s", helper, aurPlugin)
	}

	api.Log(ctx).Warn().Msgf("Could not install %s. Neither yay nor paru succeeded.", aurPlugin)
	return nil
}

func (i *Installer) pipeWireDependencies(ctx context.Context, pm system.PackageManager) error {
	script, ok := pipeWirePackages[pm]
	if !ok {
		return eris.Errorf("Unsupported package manager: %s", pm)
	}
	return i.elevated(ctx, script, "Installing PipeWire packages")
}

// pipeWirePlugin replaces the user's copy of the OBS PipeWire audio capture plugin
func (i *Installer) pipeWirePlugin(ctx context.Context) error {
	url := orDefault(i.PipeWirePluginURL, PipeWirePluginURL)
	dir, err := tempDir("lingle-obs-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	archive := filepath.Join(dir, path.Base(url))
	_, err = i.Fetcher.Download(ctx, url, archive, "")
	if err != nil {
		return err
	}

	extracted := filepath.Join(dir, "extract")
	err = fetch.Extract(ctx, archive, extracted, fetch.ExtractOptions{})
	if err != nil {
		return err
	}

	src, err := fetch.FindDir(extracted, pipeWirePlugin)
	if err != nil {
		return eris.Wrap(err, "Could not locate the extracted plugin")
	}

	target := filepath.Join(api.PathsFrom(ctx).OBSPlugins(), pipeWirePlugin)
	err = os.RemoveAll(target)
	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to remove %s", target))
	}

	err = fetch.CopyTree(src, target)
	if err != nil {
		return err
	}

	api.Log(ctx).Info().Str("dir", target).Msg("OBS PipeWire plugin installed")
	return nil
}
