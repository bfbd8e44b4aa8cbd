package cmd

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/buildinfo"
	"github.com/Flammable-Bunny/Lingle/pkg/config"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/lglog"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
	"github.com/Flammable-Bunny/Lingle/pkg/system"
)

// commands annotated with this key run without config, state or host detection
const skipSetup = "lingle/skip-setup"

var rootFlags struct {
	home  string
	debug bool
	yes   bool
	nogui bool
}

// isRoot is replaced in tests
var isRoot = system.IsRoot

var rootCmd = &cobra.Command{
	Use:   "lingle",
	Short: "Linux setup tool for Minecraft speedrunning",
	Long: `lingle prepares a Linux machine for Minecraft speedrunning (MCSR).
It manages a tmpfs for worlds, links Prism Launcher instances into it, deletes old worlds,
edits the waywall config and installs the tools commonly used during runs.`,
	Version:           buildinfo.Version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		if rootFlags.nogui {
			return runDaemon(cmd.Context())
		}
		return cmd.Help()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootFlags.home, "home", "", "operate on this home directory instead of $HOME")
	flags.BoolVar(&rootFlags.debug, "debug", false, "print debug messages with caller information")
	flags.BoolVarP(&rootFlags.yes, "yes", "y", false, "don't ask for confirmation")

	rootCmd.Flags().BoolVar(&rootFlags.nogui, "nogui", false, "same as \"lingle run\"")
	rootCmd.SetVersionTemplate(buildinfo.String() + "\n")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return exitcode.Wrap(exitcode.Misuse, err)
	})
}

func setup(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[skipSetup] != "" {
		return nil
	}

	if isRoot() {
		return exitcode.New(exitcode.Misuse, "Don't run lingle as root. It asks for elevated permissions when it needs them.")
	}

	paths, err := api.NewPaths(rootFlags.home)
	if err != nil {
		return exitcode.Wrap(exitcode.Config, err)
	}

	cfg, loader := config.Loader(paths.ConfigDir())
	err = loader.Load()
	if err != nil {
		return exitcode.Wrap(exitcode.Config, eris.Wrap(err, "Failed to load the configuration"))
	}

	err = cfg.Validate()
	if err != nil {
		return exitcode.Wrap(exitcode.Config, err)
	}

	level := cfg.LogLevel()
	if rootFlags.debug && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}
	closeLog, err := lglog.Setup(lglog.Options{
		Level:   level,
		File:    cfg.Log.File,
		JSON:    cfg.Log.JSON,
		Verbose: rootFlags.debug,
	})
	if err != nil {
		return exitcode.Wrap(exitcode.Config, err)
	}
	app.closers = append(app.closers, closeLog)

	if rootFlags.home == "" && cfg.Home != "" {
		paths, err = api.NewPaths(cfg.Home)
		if err != nil {
			return exitcode.Wrap(exitcode.Config, err)
		}
	}

	ctx := api.WithLingleContext(cmd.Context(), api.LingleCtxParams{
		Paths:     paths,
		AssumeYes: rootFlags.yes,
		Quiet:     cfg.Log.JSON,
	})

	store, err := storage.Open(paths.StateDB())
	if err != nil {
		return exitcode.Wrap(exitcode.IO, err)
	}
	app.closers = append(app.closers, store.Close)

	imported, err := store.ImportLegacyConfig(ctx, paths.LegacyConfig())
	if err != nil {
		api.Log(ctx).Warn().Err(err).Msg("Could not import the settings of an older release")
	} else if imported {
		api.Log(ctx).Info().Str("path", paths.LegacyConfig()).Msg("Imported settings of an older release")
	}

	host := system.Detect(ctx)
	_, err = store.UpdateState(ctx, func(state *storage.State) error {
		state.Distro = host.Distro
		state.GPU = host.GPU
		return nil
	})
	if err != nil {
		return err
	}

	app.cfg = cfg
	app.paths = paths
	app.store = store
	app.host = host

	cmd.SetContext(ctx)
	return nil
}

// Execute runs the command line and exits with the code attached to the error (if any)
func Execute() {
	err := rootCmd.Execute()
	app.close()

	if err != nil {
		fmt.Fprintln(os.Stderr, exitcode.Format(err))
		os.Exit(int(exitcode.From(err)))
	}
}

// exactArgs is cobra.ExactArgs with lingle's exit code for invalid usage
func exactArgs(n int) cobra.PositionalArgs {
	return misuse(cobra.ExactArgs(n))
}

func minArgs(n int) cobra.PositionalArgs {
	return misuse(cobra.MinimumNArgs(n))
}

func rangeArgs(min, max int) cobra.PositionalArgs {
	return misuse(cobra.RangeArgs(min, max))
}

func misuse(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return exitcode.Wrap(exitcode.Misuse, check(cmd, args))
	}
}
