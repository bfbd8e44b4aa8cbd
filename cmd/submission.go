package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Flammable-Bunny/Lingle/pkg/lglog"
	"github.com/Flammable-Bunny/Lingle/pkg/submission"
)

var submissionCmd = &cobra.Command{
	Use:   "submission <output dir>",
	Short: "Packs the latest run for a speedrun.com submission",
	Long: `Reads the latest world from SpeedRunIGT's latest_world.json and creates
SRC-Submission-<date>-<time>.zip in the output directory. The archive contains the latest world,
the five worlds played before it, every world created after it and the three newest logs.`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lglog.PrintTask("Packing submission")
		dest, err := submission.Build(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), dest)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submissionCmd)
}
