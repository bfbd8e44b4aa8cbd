package install

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/fetch"
	"github.com/Flammable-Bunny/Lingle/pkg/github"
	"github.com/Flammable-Bunny/Lingle/pkg/runner"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
	"github.com/Flammable-Bunny/Lingle/pkg/system"
)

const (
	DefaultPacmanConf  = "/etc/pacman.conf"
	OpenAsarURL        = "https://github.com/GooseMod/OpenAsar/releases/latest/download/app.asar"
	PipeWirePluginURL  = "https://github.com/dimtpap/obs-pipewire-audio-capture/releases/download/1.2.1/linux-pipewire-audio-1.2.1.tar.gz"
	appDownloadWorkers = 2
)

// Installer runs install plans. Runner, Fetcher and GitHub are required, Store is optional.
type Installer struct {
	Runner  runner.Runner
	Fetcher *fetch.Fetcher
	GitHub  *github.Client
	Store   *storage.Store
	Host    system.Host

	// The fields below default to the real locations when empty
	PacmanConf        string
	OpenAsarURL       string
	PipeWirePluginURL string
	DiscordTargets    []string
}

type progress struct {
	bar   *progressbar.ProgressBar
	total int
	step  int
}

func (p *progress) next(ctx context.Context, msg string) {
	p.step++
	shown := p.step
	if shown > p.total {
		shown = p.total
	}

	p.bar.Describe(msg)
	_ = p.bar.Set(shown)
	api.Log(ctx).Info().Msgf("%s (%d/%d)", msg, p.step, p.total)
}

func (i *Installer) elevated(ctx context.Context, script, what string) error {
	res, err := i.Runner.RunElevated(ctx, script)
	return runner.Check(res, err, exitcode.Dependency, what)
}

func (i *Installer) run(ctx context.Context, cmd runner.Cmd, what string) error {
	res, err := i.Runner.Run(ctx, cmd)
	return runner.Check(res, err, exitcode.Dependency, what)
}

func (i *Installer) pacmanConf() string {
	if i.PacmanConf == "" {
		return DefaultPacmanConf
	}
	return i.PacmanConf
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Install executes plan. Failed steps are recorded in the report and the remaining steps still run.
func (i *Installer) Install(ctx context.Context, plan *Plan) *Report {
	ctx = api.WithTask(ctx, "install")
	report := &Report{}
	pm := plan.PackageManager

	if pm == "" {
		report.fail(CodePkgMgrNotDetected, "Package manager", eris.New("Could not detect package manager."))
		return report
	}
	api.Log(ctx).Info().Str("pm", string(pm)).Int("steps", plan.Steps).Msg("Starting package installation")

	prog := &progress{bar: api.NewStepBar(ctx, plan.Steps, "install"), total: plan.Steps}
	defer prog.bar.Finish()

	var batch []string
	var batchNames []string
	addPackages := func(entry *Entry) bool {
		pkgs, _ := entry.PackagesFor(pm)
		if len(pkgs) == 0 {
			return false
		}
		batch = append(batch, pkgs...)
		return true
	}

	if entry := plan.First(KindWaywall); entry != nil {
		if !waywallSupported(pm) {
			report.fail(CodeUnsupportedDistro, entry.Name, eris.Errorf("Unsupported distro (package manager %s)", pm))
		} else {
			if pm == system.Dnf {
				prog.next(ctx, "Installing Fedora waywall dependencies")
				err := i.fedoraDependencies(ctx)
				if err != nil {
					report.fail(CodeInstallFailed, entry.Name, eris.Wrap(err, "Fedora dependencies"))
				}
			}

			for _, name := range []string{"Git", "Podman", "Docker", "Go"} {
				if helper := plan.catalog.Find(name); helper != nil {
					addPackages(helper)
				}
			}
		}
	}

	if entry := plan.First(KindPrism); entry != nil {
		if pm == system.Dnf {
			prog.next(ctx, "Installing Prism Launcher (COPR)")
			err := i.prismCopr(ctx)
			if err != nil {
				report.fail(entry.Code, entry.Name, err)
			} else {
				report.succeed(entry.Name)
			}
		} else if addPackages(entry) {
			batchNames = append(batchNames, entry.Name)
		}
	}

	if entry := plan.First(KindOBS); entry != nil {
		if pm == system.Pacman {
			prog.next(ctx, "Installing OBS Studio (Chaotic-AUR)")
			err := i.chaoticOBS(ctx)
			if err != nil {
				report.fail(entry.Code, entry.Name, err)
			} else {
				report.succeed(entry.Name)
			}
		} else if addPackages(entry) {
			batchNames = append(batchNames, entry.Name)
		}

		prog.next(ctx, "Installing PipeWire dependencies")
		err := i.pipeWireDependencies(ctx, pm)
		if err == nil {
			prog.next(ctx, "Installing OBS PipeWire plugin")
			err = i.pipeWirePlugin(ctx)
		}
		if err != nil {
			report.fail(entry.Code, "OBS PipeWire plugin", err)
		}
	}

	discord := plan.First(KindDiscord)
	if discord != nil && addPackages(discord) {
		batchNames = append(batchNames, discord.Name)
	}

	for _, entry := range plan.All(KindPackage) {
		if addPackages(entry) {
			batchNames = append(batchNames, entry.Name)
		}
	}

	batchFailed := false
	if len(batch) > 0 {
		prog.next(ctx, "Installing packages via "+string(pm))
		err := i.installPackages(ctx, pm, batch)
		if err != nil {
			batchFailed = true
			report.fail(CodeInstallFailed, "Package install", err)
		} else {
			report.succeed(batchNames...)
		}
	}

	if discord != nil && !batchFailed {
		prog.next(ctx, "Configuring Discord (OpenAsar)")
		err := i.openAsar(ctx, pm)
		if err != nil {
			report.fail(discord.Code, "Discord OpenAsar", err)
		}
	}

	if apps := plan.All(KindApp); len(apps) > 0 {
		i.installApps(ctx, apps, prog, report)
	}

	if entry := plan.First(KindWaywall); entry != nil && !report.failedFor(entry.Name) {
		err := i.buildWaywall(ctx, pm, prog)
		if err != nil {
			report.fail(entry.Code, entry.Name, err)
		} else {
			report.succeed(entry.Name)
		}
	}

	i.simpleStep(ctx, plan, KindDebounce, "Installing debounce configuration", prog, report, i.debounce)
	i.simpleStep(ctx, plan, KindJemalloc, "Installing Jemalloc", prog, report, i.distroPackages)
	i.simpleStep(ctx, plan, KindNvidia, "Installing NVIDIA dependencies", prog, report, i.nvidia)

	switch report.Outcome() {
	case Success:
		api.Log(ctx).Info().Strs("installed", report.Installed).Msg("All packages installed successfully")
	case Partial:
		api.Log(ctx).Warn().Strs("installed", report.Installed).Int("errors", len(report.Errors)).Msg("Partial success")
	default:
		api.Log(ctx).Error().Strs("errors", report.Messages()).Msg("Installation failed")
	}
	return report
}

func (i *Installer) simpleStep(ctx context.Context, plan *Plan, kind Kind, msg string, prog *progress, report *Report,
	fn func(context.Context, system.PackageManager, *Entry) error) {
	entry := plan.First(kind)
	if entry == nil {
		return
	}

	prog.next(ctx, msg)
	err := fn(ctx, plan.PackageManager, entry)
	if err != nil {
		report.fail(entry.Code, entry.Name, err)
		return
	}
	report.succeed(entry.Name)
}

func waywallSupported(pm system.PackageManager) bool {
	return pm == system.Pacman || pm == system.Dnf || pm == system.Apt
}

func (i *Installer) installPackages(ctx context.Context, pm system.PackageManager, pkgs []string) error {
	if !waywallSupported(pm) {
		return eris.Errorf("Unsupported package manager: %s", pm)
	}

	cmd := pm.InstallCommand(pkgs...)
	return i.elevated(ctx, cmd, fmt.Sprintf("Installing %s", strings.Join(pkgs, ", ")))
}

// tempDir creates a scratch directory which the caller has to remove
func tempDir(prefix string) (string, error) {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return "", exitcode.Wrap(exitcode.IO, eris.Wrap(err, "Failed to create temporary directory"))
	}
	return dir, nil
}
