package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/lglog"
)

var tmpfsCmd = &cobra.Command{
	Use:   "tmpfs",
	Short: "Manages the tmpfs mounted at ~/Lingle",
}

var tmpfsEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Adds the fstab entry and mounts the tmpfs",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		lglog.PrintTask("Enabling tmpfs")
		return app.tmpfs().Enable(cmd.Context())
	},
}

var tmpfsDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Unmounts the tmpfs and removes the fstab entry",
	Long:  `Unmounts the tmpfs and removes the fstab entry. All worlds stored in it are lost.`,
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !api.AssumeYes(cmd.Context()) &&
			!confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "All worlds inside ~/Lingle will be lost. Continue?") {
			return nil
		}

		lglog.PrintTask("Disabling tmpfs")
		return app.tmpfs().Disable(cmd.Context())
	},
}

var tmpfsToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Enables the tmpfs if it's disabled and the other way around",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled, err := app.tmpfs().Toggle(cmd.Context())
		if err != nil {
			return err
		}

		if enabled {
			lglog.PrintTask("tmpfs enabled")
		} else {
			lglog.PrintTask("tmpfs disabled")
		}
		return nil
	},
}

var tmpfsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows whether the tmpfs is mounted",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := app.tmpfs().Status(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Mount point: %s\n", app.paths.LingleDir())
		fmt.Fprintf(out, "Enabled:     %v\n", status.Enabled)
		fmt.Fprintf(out, "Mounted:     %v\n", status.Mounted)
		if status.Mounted {
			fmt.Fprintf(out, "Free:        %s of %s\n", api.FormatBytes(float64(status.Free)),
				api.FormatBytes(float64(status.Total)))
		}
		if status.Enabled != status.Mounted {
			lglog.PrintError("The tmpfs state doesn't match the mount. Run \"lingle tmpfs enable\" or \"lingle tmpfs disable\".")
		}
		return nil
	},
}

func init() {
	tmpfsCmd.AddCommand(tmpfsEnableCmd, tmpfsDisableCmd, tmpfsToggleCmd, tmpfsStatusCmd)
	rootCmd.AddCommand(tmpfsCmd)
}
