package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Flammable-Bunny/Lingle/pkg/buildinfo"
	"github.com/Flammable-Bunny/Lingle/pkg/lglog"
)

var updateFlags struct {
	check bool
	force bool
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Replaces lingle with the newest release",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		u := app.updater()
		update, err := u.Check(cmd.Context(), updateFlags.force)
		if err != nil {
			return err
		}

		if !update.Available {
			lglog.PrintTask(fmt.Sprintf("lingle %s is up to date", buildinfo.Version))
			return nil
		}

		lglog.PrintTask(fmt.Sprintf("lingle %s is available (installed: %s)", update.Latest, update.Current))
		if updateFlags.check {
			return nil
		}

		path, err := u.Apply(cmd.Context(), update)
		if err != nil {
			return err
		}

		lglog.PrintSubtask("Replaced " + path)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Prints the version",
	Args:        exactArgs(0),
	Annotations: map[string]string{skipSetup: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
	},
}

func init() {
	updateCmd.Flags().BoolVar(&updateFlags.check, "check", false, "only check for a new version")
	updateCmd.Flags().BoolVar(&updateFlags.force, "force", false, "reinstall the newest release even if it isn't newer")

	rootCmd.AddCommand(updateCmd, versionCmd)
}
