package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/lglog"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
	"github.com/Flammable-Bunny/Lingle/pkg/worlds"
)

var adwCmd = &cobra.Command{
	Use:   "adw",
	Short: "Configures Auto Delete Worlds",
	Long: `Auto Delete Worlds keeps the newest worlds of every tmpfs slot and deletes the rest while
"lingle run" is active. Worlds starting with the ignore prefix (Z by default) are kept.`,
}

func setADW(cmd *cobra.Command, enabled bool) error {
	state, err := app.store.UpdateState(cmd.Context(), func(s *storage.State) error {
		s.ADW = enabled
		return nil
	})
	if err != nil {
		return err
	}

	if enabled && !state.Tmpfs {
		lglog.PrintError("Auto Delete Worlds only runs while the tmpfs is enabled")
	}
	lglog.PrintTask(fmt.Sprintf("Auto Delete Worlds enabled: %v", enabled))
	return nil
}

var adwEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enables Auto Delete Worlds",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setADW(cmd, true)
	},
}

var adwDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disables Auto Delete Worlds",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setADW(cmd, false)
	},
}

var adwIntervalCmd = &cobra.Command{
	Use:   "interval [seconds]",
	Short: "Shows or changes how often Auto Delete Worlds runs",
	Args:  rangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			state, err := app.store.GetState(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", state.ADWInterval)
			return nil
		}

		seconds, err := strconv.Atoi(args[0])
		if err != nil {
			return exitcode.Errorf(exitcode.Misuse, "Invalid interval %q", args[0])
		}

		state, err := app.store.UpdateState(cmd.Context(), func(s *storage.State) error {
			s.ADWInterval = seconds
			return nil
		})
		if err != nil {
			return err
		}

		lglog.PrintTask(fmt.Sprintf("Auto Delete Worlds runs every %d seconds", state.ADWInterval))
		return nil
	},
}

var adwPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Deletes old worlds from every tmpfs slot now",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := app.adw().PruneOnce(cmd.Context())
		lglog.PrintTask(fmt.Sprintf("Deleted %d of %d worlds", len(report.Deleted), report.Scanned))
		return err
	},
}

var bopperCmd = &cobra.Command{
	Use:   "bopper",
	Short: "Configures the World Bopper",
	Long: `The World Bopper deletes worlds of the selected instances when "lingle run" exits. Rules decide
which worlds survive: a world matching a rule's prefix is kept if it reached the rule's condition.`,
}

func setBopper(cmd *cobra.Command, enabled bool) error {
	_, err := app.store.UpdateState(cmd.Context(), func(s *storage.State) error {
		s.WorldBopper = enabled
		return nil
	})
	if err != nil {
		return err
	}

	lglog.PrintTask(fmt.Sprintf("World Bopper enabled: %v", enabled))
	return nil
}

var bopperEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enables the World Bopper",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setBopper(cmd, true)
	},
}

var bopperDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disables the World Bopper",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setBopper(cmd, false)
	},
}

var bopperInstancesCmd = &cobra.Command{
	Use:   "instances [instance]...",
	Short: "Shows or replaces the instances cleaned by the World Bopper",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			known, err := app.links().ListInstances(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range args {
				if !contains(known, name) {
					return exitcode.Errorf(exitcode.Instance, "Instance %q not found", name)
				}
			}

			_, err = app.store.UpdateState(cmd.Context(), func(s *storage.State) error {
				s.BopperInstances = args
				return nil
			})
			if err != nil {
				return err
			}
		}

		state, err := app.store.GetState(cmd.Context())
		if err != nil {
			return err
		}
		for _, name := range state.BopperInstances {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var bopperRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Lists the keep rules",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := app.store.GetState(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tPREFIX\tKEEP IF")
		for idx, rule := range state.BopperRules {
			fmt.Fprintf(w, "%d\t%s\t%s\n", idx+1, rule.Prefix, describeRule(rule))
		}
		return w.Flush()
	},
}

func describeRule(rule storage.KeepRule) string {
	condition := worlds.ParseCondition(rule.Condition)
	if condition == worlds.WorldSize {
		return fmt.Sprintf("larger than %d MB", rule.MinSizeMB)
	}
	return condition.DisplayName()
}

var addRuleFlags struct {
	prefix    string
	condition string
	minSize   int
}

var bopperAddRuleCmd = &cobra.Command{
	Use:   "add-rule",
	Short: "Adds a keep rule",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		condition := worlds.KeepCondition(strings.ToLower(addRuleFlags.condition))
		if !condition.Valid() {
			names := make([]string, len(worlds.Conditions))
			for idx, c := range worlds.Conditions {
				names[idx] = string(c)
			}
			return exitcode.Errorf(exitcode.Misuse, "Unknown condition %q, expected one of %s", addRuleFlags.condition,
				strings.Join(names, ", "))
		}
		if addRuleFlags.prefix == "" {
			return exitcode.New(exitcode.Misuse, "The prefix must not be empty")
		}
		if addRuleFlags.minSize < 0 {
			return exitcode.New(exitcode.Misuse, "The minimum size must not be negative")
		}

		rule := storage.KeepRule{
			Prefix:    addRuleFlags.prefix,
			Condition: string(condition),
			MinSizeMB: addRuleFlags.minSize,
		}
		_, err := app.store.UpdateState(cmd.Context(), func(s *storage.State) error {
			s.BopperRules = append(s.BopperRules, rule)
			return nil
		})
		if err != nil {
			return err
		}

		lglog.PrintTask(fmt.Sprintf("Worlds starting with %q are kept if: %s", rule.Prefix, describeRule(rule)))
		return nil
	},
}

var bopperRemoveRuleCmd = &cobra.Command{
	Use:   "remove-rule <number>",
	Short: "Removes a keep rule (see \"lingle bopper rules\")",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return exitcode.Errorf(exitcode.Misuse, "Invalid rule number %q", args[0])
		}

		_, err = app.store.UpdateState(cmd.Context(), func(s *storage.State) error {
			if idx < 1 || idx > len(s.BopperRules) {
				return exitcode.Errorf(exitcode.Misuse, "There is no rule %d", idx)
			}
			s.BopperRules = append(s.BopperRules[:idx-1], s.BopperRules[idx:]...)
			return nil
		})
		return err
	},
}

var bopperRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs the World Bopper now",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		bopper := &worlds.Bopper{Store: app.store}
		report, err := bopper.RunOnce(cmd.Context())
		if err != nil {
			return err
		}

		lglog.PrintTask(bopperSummary(report))
		return nil
	},
}

func bopperSummary(report worlds.Report) string {
	return fmt.Sprintf("World Bopper deleted %d of %d worlds", len(report.Deleted), report.Scanned)
}

func contains(list []string, item string) bool {
	for _, entry := range list {
		if entry == item {
			return true
		}
	}
	return false
}

func init() {
	flags := bopperAddRuleCmd.Flags()
	flags.StringVar(&addRuleFlags.prefix, "prefix", "", "world name prefix the rule applies to")
	flags.StringVar(&addRuleFlags.condition, "condition", string(worlds.AlwaysDelete), "what a world has to reach to be kept")
	flags.IntVar(&addRuleFlags.minSize, "min-size", storage.DefaultMinSizeMB, "minimum size in MB for the world_size condition")

	adwCmd.AddCommand(adwEnableCmd, adwDisableCmd, adwIntervalCmd, adwPruneCmd)
	bopperCmd.AddCommand(bopperEnableCmd, bopperDisableCmd, bopperInstancesCmd, bopperRulesCmd, bopperAddRuleCmd,
		bopperRemoveRuleCmd, bopperRunCmd)
	rootCmd.AddCommand(adwCmd, bopperCmd)
}
