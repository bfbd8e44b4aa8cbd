package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/lglog"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
	"github.com/Flammable-Bunny/Lingle/pkg/waywall"
)

var waywallCmd = &cobra.Command{
	Use:   "waywall",
	Short: "Edits the waywall config in ~/.config/waywall",
}

var waywallToggleCmd = &cobra.Command{
	Use:   "toggle <key> [on|off]",
	Short: "Sets a boolean option in config.lua; without a value the option is flipped",
	Args:  rangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := app.waywall()
		value := !cfg.GetToggle(args[0], false)
		if len(args) == 2 {
			var ok bool
			value, ok = parseSwitch(args[1])
			if !ok {
				return exitcode.Errorf(exitcode.Misuse, "Expected on or off, got %q", args[1])
			}
		}

		err := cfg.SetToggle(args[0], value)
		if err != nil {
			return err
		}

		lglog.PrintTask(fmt.Sprintf("%s = %v", args[0], value))
		return nil
	},
}

var waywallRes1440Cmd = &cobra.Command{
	Use:   "res1440 <on|off>",
	Short: "Switches the mirror layout between 1080p and 1440p monitors",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, ok := parseSwitch(args[0])
		if !ok {
			return exitcode.Errorf(exitcode.Misuse, "Expected on or off, got %q", args[0])
		}

		return app.waywall().SetToggle("res_1440", value)
	},
}

var waywallPathCmd = &cobra.Command{
	Use:   "path <variable> <file>",
	Short: "Stores a file location (e.g. the Ninjabrain Bot jar) in the waywall config",
	Args:  exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := filepath.Abs(args[1])
		if err != nil {
			return exitcode.Wrap(exitcode.Misuse, eris.Wrapf(err, "Failed to resolve %s", args[1]))
		}

		return app.waywall().SetPathVar(args[0], app.paths.ToHomeRelative(file))
	},
}

var waywallKeybindCmd = &cobra.Command{
	Use:   "keybind",
	Short: "Manages the keybinds in config.lua",
}

var keybindListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the managed keybinds",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := app.store.GetState(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVARIABLE\tKEY")
		for _, bind := range waywall.Binds {
			fmt.Fprintf(w, "%s\t%s\t%s\n", bind.StateName, bind.Var, state.Keybind(bind.StateName))
		}
		return w.Flush()
	},
}

var keybindSetCmd = &cobra.Command{
	Use:   "set <name> <bind>",
	Short: "Changes a keybind, e.g. \"lingle waywall keybind set Thin_Key Shift-F1\"",
	Args:  exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		canonical, err := app.waywall().ApplyKeybind(cmd.Context(), app.store, args[0], args[1])
		if err != nil {
			return err
		}

		lglog.PrintTask(fmt.Sprintf("%s = %s", args[0], canonical))
		return nil
	},
}

var keybindResetCmd = &cobra.Command{
	Use:   "reset <name>",
	Short: "Restores the placeholder of a keybind",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.waywall().ResetKeybind(cmd.Context(), app.store, args[0])
	},
}

var keybindDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Reads the keybinds configured in config.lua into lingle's state",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		detected, err := app.waywall().SyncKeybinds(cmd.Context(), app.store)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(detected))
		for name := range detected {
			names = append(names, name)
		}
		sort.Strings(names)

		lglog.PrintTask(fmt.Sprintf("Detected %d keybinds", len(names)))
		for _, name := range names {
			lglog.PrintSubtask(fmt.Sprintf("%s = %s", name, detected[name]))
		}
		return nil
	},
}

var waywallRemapCmd = &cobra.Command{
	Use:   "remap",
	Short: "Manages the key remaps in remaps.lua",
}

func printRemaps(cmd *cobra.Command, remaps []storage.Remap) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tFROM\tTO\tPERMANENT")
	for idx, remap := range remaps {
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\n", idx+1, remap.From, remap.To, remap.Permanent)
	}
	return w.Flush()
}

var remapListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the stored remaps",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := app.store.GetState(cmd.Context())
		if err != nil {
			return err
		}
		return printRemaps(cmd, state.Remaps)
	},
}

var remapAddFlags struct {
	permanent bool
}

var remapAddCmd = &cobra.Command{
	Use:   "add <from> <to>",
	Short: "Remaps a key; an existing remap of the same key is replaced",
	Args:  exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		remaps, err := app.waywall().AddRemap(cmd.Context(), app.store, storage.Remap{
			From:      args[0],
			To:        args[1],
			Permanent: remapAddFlags.permanent,
		})
		if err != nil {
			return err
		}
		return printRemaps(cmd, remaps)
	},
}

var remapRemoveCmd = &cobra.Command{
	Use:   "remove <key|number>",
	Short: "Removes the remap of a key",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from := args[0]
		if idx, err := strconv.Atoi(from); err == nil {
			state, err := app.store.GetState(cmd.Context())
			if err != nil {
				return err
			}
			if idx < 1 || idx > len(state.Remaps) {
				return exitcode.Errorf(exitcode.Misuse, "There is no remap %d", idx)
			}
			from = state.Remaps[idx-1].From
		}

		remaps, err := app.waywall().RemoveRemap(cmd.Context(), app.store, from)
		if err != nil {
			return err
		}
		return printRemaps(cmd, remaps)
	},
}

var remapApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Rewrites remaps.lua from the stored remaps",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := app.store.GetState(cmd.Context())
		if err != nil {
			return err
		}

		err = app.waywall().WriteRemaps(state.Remaps)
		if err != nil {
			return err
		}

		lglog.PrintTask(fmt.Sprintf("Wrote %d remaps", len(state.Remaps)))
		return nil
	},
}

func init() {
	remapAddCmd.Flags().BoolVar(&remapAddFlags.permanent, "permanent", false,
		"write the remap to remapped_kb instead of normal_kb")

	waywallKeybindCmd.AddCommand(keybindListCmd, keybindSetCmd, keybindResetCmd, keybindDetectCmd)
	waywallRemapCmd.AddCommand(remapListCmd, remapAddCmd, remapRemoveCmd, remapApplyCmd)
	waywallCmd.AddCommand(waywallToggleCmd, waywallRes1440Cmd, waywallPathCmd, waywallKeybindCmd, waywallRemapCmd)
	rootCmd.AddCommand(waywallCmd)
}
