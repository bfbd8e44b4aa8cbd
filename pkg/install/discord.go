package install

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/runner"
	"github.com/Flammable-Bunny/Lingle/pkg/system"
)

const flatpakAsar = "app/com.discordapp.Discord/current/active/files/discord/resources/app.asar"

// DiscordTargets lists the known app.asar locations in the order they're probed
func DiscordTargets(paths api.Paths) []string {
	return []string{
		"/opt/discord/resources/app.asar",
		"/usr/lib/discord/resources/app.asar",
		"/usr/lib64/discord/resources/app.asar",
		"/usr/share/discord/resources/app.asar",
		"/var/lib/flatpak/" + flatpakAsar,
		filepath.Join(paths.Home, ".local", "share", "flatpak", flatpakAsar),
	}
}

func (i *Installer) discordTarget(ctx context.Context, pm system.PackageManager) (string, error) {
	if len(i.DiscordTargets) == 0 {
		switch pm {
		case system.Pacman:
			return "/opt/discord/resources/app.asar", nil
		case system.Dnf:
			return "/usr/lib64/discord/resources/app.asar", nil
		}
	}

	candidates := i.DiscordTargets
	if len(candidates) == 0 {
		candidates = DiscordTargets(api.PathsFrom(ctx))
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", exitcode.New(exitcode.Dependency, "Could not find Discord installation location")
}

// openAsar swaps Discord's app.asar for OpenAsar and keeps the previous one as app.asar.backup
func (i *Installer) openAsar(ctx context.Context, pm system.PackageManager) error {
	target, err := i.discordTarget(ctx, pm)
	if err != nil {
		return err
	}

	dir, err := tempDir("lingle-discord-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	asar := filepath.Join(dir, "app.asar")
	_, err = i.Fetcher.Download(ctx, orDefault(i.OpenAsarURL, OpenAsarURL), asar, "")
	if err != nil {
		return eris.Wrap(err, "Failed to download OpenAsar")
	}

	quoted := runner.Quote(target)
	script := "if [ -f " + quoted + " ]; then cp -f " + quoted + " " + runner.Quote(target+".backup") + "; fi\n" +
		"cp -f " + runner.QuoteAll(asar, target) + "\n"
	return i.elevated(ctx, script, "Replacing "+target)
}
