package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/lglog"
	"github.com/Flammable-Bunny/Lingle/pkg/prism"
)

var instancesCmd = &cobra.Command{
	Use:     "instances",
	Aliases: []string{"instance"},
	Short:   "Manages Prism Launcher instances",
}

var instancesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists all Prism Launcher instances",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := app.links().ListInstances(cmd.Context())
		if err != nil {
			return err
		}

		state, err := app.store.GetState(cmd.Context())
		if err != nil {
			return err
		}

		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		if len(names) == 0 {
			lglog.PrintError("No instances found in " + app.paths.PrismInstances())
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d instances linked to the tmpfs\n", state.InstanceCount)
		return nil
	},
}

var instancesLinkCmd = &cobra.Command{
	Use:   "link <instance>...",
	Short: "Replaces the saves of the given instances with links into the tmpfs",
	Long: `Replaces the saves folder of every given instance with a symlink to ~/Lingle/<n> where n is the
position of the instance on the command line. Existing worlds of these instances are deleted.`,
	Args: minArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !api.AssumeYes(cmd.Context()) && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
			fmt.Sprintf("The saves of %s will be deleted. Continue?", strings.Join(args, ", "))) {
			return nil
		}

		lglog.PrintTask("Linking instances")
		err := app.links().SymlinkInstances(cmd.Context(), args)
		if err != nil {
			return err
		}

		for idx, name := range args {
			lglog.PrintSubtask(fmt.Sprintf("%s -> %s", name, app.paths.Slot(idx+1)))
		}
		return nil
	},
}

var instancesConfigureFlags struct {
	nvidia bool
}

var instancesConfigureCmd = &cobra.Command{
	Use:   "configure <instance>...",
	Short: "Points the given instances at waywall's GLFW and the system JDK",
	Args:  minArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nvidia := instancesConfigureFlags.nvidia
		if !cmd.Flags().Changed("nvidia") {
			nvidia = strings.Contains(strings.ToLower(app.host.GPU), "nvidia")
		}

		lglog.PrintTask("Configuring instances")
		result, err := prism.ConfigureInstances(cmd.Context(), args, app.host.PackageManager, nvidia)
		if err != nil {
			return err
		}

		for _, name := range result.Configured {
			lglog.PrintSubtask(name)
		}
		for _, name := range result.Skipped {
			lglog.PrintError("Skipped " + name)
		}
		if app.host.PackageManager == "" {
			lglog.PrintError("Unknown distro, the Java path might be wrong")
		}
		return nil
	},
}

func init() {
	instancesConfigureCmd.Flags().BoolVar(&instancesConfigureFlags.nvidia, "nvidia", false,
		"disable threaded GL optimizations (detected from the GPU by default)")

	instancesCmd.AddCommand(instancesListCmd, instancesLinkCmd, instancesConfigureCmd)
	rootCmd.AddCommand(instancesCmd)
}
