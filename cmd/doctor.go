package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/colorstring"
	"github.com/spf13/cobra"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/install"
	"github.com/Flammable-Bunny/Lingle/pkg/system"
	"github.com/Flammable-Bunny/Lingle/pkg/tmpfs"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Shows what lingle detected about this machine",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := app.store.GetState(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		pm := string(app.host.PackageManager)
		if pm == "" {
			pm = system.Unknown
		}

		check(out, "Distribution", app.host.Distro, app.host.Distro != system.Unknown)
		check(out, "Package manager", pm, app.host.PackageManager != "")
		check(out, "GPU", app.host.GPU, app.host.GPU != system.Unknown)
		check(out, "Display", fmt.Sprint(system.HasDisplay()), system.HasDisplay())

		mounted, err := tmpfs.IsMounted(app.paths.LingleDir())
		if err != nil {
			api.Log(cmd.Context()).Debug().Err(err).Msg("Could not inspect the tmpfs")
		}
		check(out, "tmpfs mounted", fmt.Sprint(mounted), mounted == state.Tmpfs)

		missing := system.MissingCommands(install.RequiredCommands...)
		if len(missing) == 0 {
			check(out, "Commands", "all available", true)
		} else {
			check(out, "Commands", "missing "+strings.Join(missing, ", ")+" (run \"lingle deps --install\")", false)
		}

		fmt.Fprintln(out)
		fmt.Fprintf(out, "Home:               %s\n", app.paths.Home)
		fmt.Fprintf(out, "State:              %s\n", app.paths.StateDB())
		fmt.Fprintf(out, "tmpfs enabled:      %v (%s)\n", state.Tmpfs, app.cfg.Tmpfs.Size)
		fmt.Fprintf(out, "Linked instances:   %d\n", state.InstanceCount)
		fmt.Fprintf(out, "Practice maps:      %v (%d selected)\n", state.PracticeMaps, len(state.SelectedMaps))
		fmt.Fprintf(out, "Auto Delete Worlds: %v (every %ds)\n", state.ADW, state.ADWInterval)
		fmt.Fprintf(out, "World Bopper:       %v (%d instances, %d rules)\n", state.WorldBopper,
			len(state.BopperInstances), len(state.BopperRules))
		fmt.Fprintf(out, "Remaps:             %d\n", len(state.Remaps))
		return nil
	},
}

func check(out io.Writer, name, value string, ok bool) {
	mark := "[green]ok[reset]"
	if !ok {
		mark = "[yellow]!![reset]"
	}
	colorstring.Fprintf(out, "%s %-16s %s\n", mark, name+":", value)
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
