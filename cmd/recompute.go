package cmd

import (
	"fmt"

	"github.com/klokku/habitweek/internal/app"
	"github.com/klokku/habitweek/pkg/week"
	"github.com/spf13/cobra"
)

var (
	recomputeUser string
	recomputeFrom string
	recomputeTo   string
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Re-derive weekly summaries from the stored days",
	Long: `Re-derive the summary of every week overlapping the date range, oldest week first,
so that each weight bonus is computed from an up to date previous week.

Example:
  habitweek recompute --user 5f0c2a6e-7f1d-4c5b-9a57-0c1f0e3b9d21 --from 2025-01-01 --to 2025-06-30`,
	RunE: runRecompute,
}

func init() {
	recomputeCmd.Flags().StringVar(&recomputeUser, "user", "", "uid of the user")
	recomputeCmd.Flags().StringVar(&recomputeFrom, "from", "", "first date of the range (YYYY-MM-DD)")
	recomputeCmd.Flags().StringVar(&recomputeTo, "to", "", "last date of the range (YYYY-MM-DD)")
	_ = recomputeCmd.MarkFlagRequired("user")
	_ = recomputeCmd.MarkFlagRequired("from")
	_ = recomputeCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(recomputeCmd)
}

func runRecompute(cmd *cobra.Command, args []string) error {
	from, err := week.ParseDate(recomputeFrom)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := week.ParseDate(recomputeTo)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}

	application, err := app.NewApplication(configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	count, err := application.RecomputeRange(cmd.Context(), recomputeUser, from, to)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recomputed %d week(s)\n", count)
	return nil
}
