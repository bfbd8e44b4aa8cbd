package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/lglog"
	"github.com/Flammable-Bunny/Lingle/pkg/system"
)

var mapsCmd = &cobra.Command{
	Use:   "maps",
	Short: "Links practice maps into every tmpfs slot",
	Long: `Practice maps are stored in ~/.local/share/lingle/saves and linked into the saves folder of every
tmpfs slot so that they survive Auto Delete Worlds and reboots.`,
}

var mapsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the available practice maps and marks the selected ones",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := app.links().ListPracticeMaps(cmd.Context())
		if err != nil {
			return err
		}

		state, err := app.store.GetState(cmd.Context())
		if err != nil {
			return err
		}

		selected := make(map[string]bool, len(state.SelectedMaps))
		for _, name := range state.SelectedMaps {
			selected[name] = true
		}

		for _, name := range names {
			marker := " "
			if selected[name] {
				marker = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
		}
		if len(names) == 0 {
			lglog.PrintError("No practice maps found in " + app.paths.SavesDir())
		}
		return nil
	},
}

var mapsSelectCmd = &cobra.Command{
	Use:   "select [map]...",
	Short: "Selects the practice maps to link; no maps disables linking",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := app.links().SelectMaps(cmd.Context(), args)
		if err != nil {
			return err
		}

		lglog.PrintTask(fmt.Sprintf("%d practice maps selected", len(args)))
		return nil
	},
}

var mapsLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Links the selected practice maps into every slot now",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := app.links().LinkPracticeMapsNow(cmd.Context())
		if err != nil {
			return err
		}

		lglog.PrintTask(fmt.Sprintf("Created %d links", count))
		return nil
	},
}

var mapsServiceCmd = &cobra.Command{
	Use:   "service",
	Short: "Installs a systemd service which links the practice maps on boot",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := system.CurrentUser()
		if err != nil {
			return exitcode.Wrap(exitcode.General, err)
		}

		lglog.PrintTask("Installing startup service")
		return app.links().InstallStartupService(cmd.Context(), user)
	},
}

func init() {
	mapsCmd.AddCommand(mapsListCmd, mapsSelectCmd, mapsLinkCmd, mapsServiceCmd)
	rootCmd.AddCommand(mapsCmd)
}
