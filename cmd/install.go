package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/install"
	"github.com/Flammable-Bunny/Lingle/pkg/lglog"
)

var installFlags struct {
	list bool
}

var installCmd = &cobra.Command{
	Use:   "install [package]...",
	Short: "Installs waywall, Prism Launcher, OBS and other tools used for MCSR",
	Long: `Installs the named packages (see --list). Failures of one package don't stop the others;
all errors are listed at the end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := install.DefaultCatalog()
		if err != nil {
			return err
		}

		if installFlags.list || len(args) == 0 {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tPACKAGES")
			for _, entry := range catalog.Entries {
				pkgs, ok := entry.PackagesFor(app.host.PackageManager)
				listed := "-"
				switch {
				case len(pkgs) > 0:
					listed = strings.Join(pkgs, " ")
				case !ok && entry.Kind == install.KindPackage:
					listed = "unavailable"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", entry.Name, entry.Kind, listed)
			}
			return w.Flush()
		}

		plan, err := install.NewPlan(args, app.host.PackageManager)
		if err != nil {
			return err
		}

		lglog.PrintTask("Installing " + strings.Join(args, ", "))
		report := app.installer().Install(cmd.Context(), plan)

		fmt.Fprint(cmd.OutOrStdout(), report.String())
		switch report.Outcome() {
		case install.Success:
			return nil
		case install.Partial:
			return exitcode.Errorf(exitcode.Dependency, "%d of %d packages failed", len(report.Errors), len(plan.Selected))
		default:
			return exitcode.New(exitcode.Dependency, "Installation failed")
		}
	},
}

var depsFlags struct {
	install bool
}

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Checks for the commands lingle relies on",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps := &install.Deps{
			Installer: app.installer(),
			Confirm: func(missing []string) bool {
				return depsFlags.install && confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
					fmt.Sprintf("Install %s?", strings.Join(missing, ", ")))
			},
		}

		installed, err := deps.EnsureDeps(cmd.Context(), install.RequiredCommands...)
		if err != nil {
			return err
		}

		if len(installed) == 0 {
			lglog.PrintTask("All dependencies are available")
		} else {
			lglog.PrintTask("Installed " + strings.Join(installed, ", "))
		}
		return nil
	},
}

func init() {
	installCmd.Flags().BoolVar(&installFlags.list, "list", false, "list the available packages")
	depsCmd.Flags().BoolVar(&depsFlags.install, "install", false, "offer to install missing commands")

	rootCmd.AddCommand(installCmd, depsCmd)
}
