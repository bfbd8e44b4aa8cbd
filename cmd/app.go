package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/buildinfo"
	"github.com/Flammable-Bunny/Lingle/pkg/config"
	"github.com/Flammable-Bunny/Lingle/pkg/fetch"
	"github.com/Flammable-Bunny/Lingle/pkg/github"
	"github.com/Flammable-Bunny/Lingle/pkg/install"
	"github.com/Flammable-Bunny/Lingle/pkg/links"
	"github.com/Flammable-Bunny/Lingle/pkg/runner"
	"github.com/Flammable-Bunny/Lingle/pkg/scripts"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
	"github.com/Flammable-Bunny/Lingle/pkg/system"
	"github.com/Flammable-Bunny/Lingle/pkg/tmpfs"
	"github.com/Flammable-Bunny/Lingle/pkg/updater"
	"github.com/Flammable-Bunny/Lingle/pkg/waywall"
	"github.com/Flammable-Bunny/Lingle/pkg/worlds"
)

// environment shared by all commands; filled in by setup()
type environment struct {
	cfg    *config.Config
	paths  api.Paths
	store  *storage.Store
	host   system.Host
	runner runner.Runner

	closers []func() error
}

var app environment

func (e *environment) close() {
	if sys, ok := e.runner.(*runner.System); ok {
		if err := sys.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop the root shell")
		}
	}

	for idx := len(e.closers) - 1; idx >= 0; idx-- {
		if err := e.closers[idx](); err != nil {
			log.Warn().Err(err).Msg("Cleanup failed")
		}
	}
	e.closers = nil
}

func (e *environment) run() runner.Runner {
	if e.runner == nil {
		e.runner = runner.NewSystem()
	}
	return e.runner
}

func (e *environment) links() *links.Service {
	return &links.Service{Store: e.store, Runner: e.run()}
}

func (e *environment) tmpfsParams() scripts.TmpfsParams {
	user, err := system.CurrentUser()
	if err != nil {
		log.Warn().Err(err).Msg("Falling back to $LOGNAME")
		user = os.Getenv("LOGNAME")
	}

	return scripts.TmpfsParams{
		User:   user,
		Target: e.paths.LingleDir(),
		Size:   e.cfg.Tmpfs.Size,
		Mode:   e.cfg.Tmpfs.Mode,
	}
}

func (e *environment) tmpfs() *tmpfs.Manager {
	return &tmpfs.Manager{
		Store:  e.store,
		Runner: e.run(),
		Links:  e.links(),
		Params: e.tmpfsParams(),
	}
}

func (e *environment) adw() *worlds.ADW {
	return &worlds.ADW{
		Store:        e.store,
		Keep:         e.cfg.ADW.Keep,
		IgnorePrefix: e.cfg.ADW.IgnorePrefix,
	}
}

func (e *environment) waywall() *waywall.Config {
	return waywall.New(e.paths)
}

func (e *environment) github() *github.Client {
	return github.NewClient(e.cfg.Update.API, e.cfg.Update.Timeout)
}

func (e *environment) fetcher() *fetch.Fetcher {
	return fetch.New(e.cfg.HTTP.Timeout, e.store)
}

func (e *environment) updater() *updater.Updater {
	return &updater.Updater{
		GitHub:  e.github(),
		Fetcher: e.fetcher(),
		Repo:    e.cfg.Update.Repo,
		Current: buildinfo.Version,
	}
}

func (e *environment) installer() *install.Installer {
	return &install.Installer{
		Runner:  e.run(),
		Fetcher: e.fetcher(),
		GitHub:  e.github(),
		Store:   e.store,
		Host:    e.host,
	}
}

// confirm asks a yes/no question on out and reads the answer from in. Anything but y/yes is a no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// parseSwitch accepts the usual spellings of on and off
func parseSwitch(value string) (bool, bool) {
	switch strings.ToLower(value) {
	case "on", "true", "yes", "1", "enable", "enabled":
		return true, true
	case "off", "false", "no", "0", "disable", "disabled":
		return false, true
	default:
		return false, false
	}
}
