package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/lglog"
	"github.com/Flammable-Bunny/Lingle/pkg/scripts"
	"github.com/Flammable-Bunny/Lingle/pkg/worlds"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Prepares the tmpfs links and keeps Auto Delete Worlds running until interrupted",
	Long: `Runs lingle's startup sequence without a window: the tmpfs scripts are refreshed, the
waywall config learns where lingle lives, practice maps are linked and Auto Delete Worlds
runs in the background. On SIGINT or SIGTERM the World Bopper cleans up once (if enabled).`,
	Args: exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = api.WithTask(ctx, "run")

	lglog.PrintTask("Starting lingle")
	err := scripts.EnsureScripts(ctx, app.tmpfsParams())
	if err != nil {
		return exitcode.Wrap(exitcode.IO, err)
	}

	state, err := app.store.GetState(ctx)
	if err != nil {
		return err
	}

	exe, err := os.Executable()
	if err == nil {
		err = app.waywall().RegisterExecutable(app.paths, exe)
	}
	if err != nil {
		api.Log(ctx).Warn().Err(err).Msg("Could not register lingle in the waywall config")
	}

	ran, err := app.links().PreparePracticeMapLinks(ctx)
	if err != nil {
		api.Log(ctx).Warn().Err(err).Msg("Practice maps could not be linked")
	} else if ran {
		lglog.PrintSubtask("Practice maps linked")
	}

	go checkForUpdate(ctx)

	adw := app.adw()
	startADW(ctx, adw)

	api.Log(ctx).Info().Bool("tmpfs", state.Tmpfs).Int("instances", state.InstanceCount).Msg("Ready, press Ctrl+C to exit")
	<-ctx.Done()

	lglog.PrintTask("Shutting down")
	adw.Stop()

	// the signal context is done, the cleanup gets a fresh one
	cleanupCtx := context.WithoutCancel(ctx)
	state, err = app.store.GetState(cleanupCtx)
	if err != nil {
		return err
	}

	if state.WorldBopper {
		bopper := &worlds.Bopper{Store: app.store}
		report, err := bopper.RunOnce(cleanupCtx)
		if err != nil {
			return err
		}
		lglog.PrintSubtask(bopperSummary(report))
	}
	return nil
}

type worldCleaner interface {
	Start(ctx context.Context) (bool, error)
}

// startADW keeps the daemon alive when Auto Delete Worlds can't start
func startADW(ctx context.Context, adw worldCleaner) bool {
	started, err := adw.Start(ctx)
	if err != nil {
		api.Log(ctx).Warn().Err(exitcode.Wrap(exitcode.ADW, err)).Msg("Auto Delete Worlds could not be started")
		return false
	}
	if started {
		lglog.PrintSubtask("Auto Delete Worlds running")
	}
	return started
}

func checkForUpdate(ctx context.Context) {
	update, err := app.updater().Check(ctx, false)
	if err != nil {
		api.Log(ctx).Debug().Err(err).Msg("Update check failed")
		return
	}

	if update.Available {
		api.Log(ctx).Info().Str("current", update.Current).Str("latest", update.Latest).
			Msg("A new version is available, run \"lingle update\" to install it")
	}
}
