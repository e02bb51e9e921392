package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"refract.dev/pkg/refract/internal/domain"
	m "refract.dev/pkg/refract/internal/model"
	pkg "refract.dev/pkg/refract/pkg"
)

// viewCmd represents the view command.
var viewCmd = newViewCmd()

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "View the latest mining report",
		Long:  "View the most recent mining report from the reports directory, with cross-run savings totals.",
		Args:  cobra.ExactArgs(0),
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := context.Background()
			reportsDir := viper.GetString(outputFlagName)

			report, err := reportStore.LoadLatest(reportsDir)
			if err != nil {
				return err
			}

			if err := ui.Start(ctx); err != nil {
				return err
			}
			defer ui.Close(ctx)

			if err := ui.DisplayReport(ctx, report); err != nil {
				return err
			}

			summary, err := savingsAcrossRuns(reportsDir)
			if err != nil {
				return err
			}

			c.Printf("Across %d run(s): %d abstraction(s), %d node(s) saved\n",
				summary.Runs, summary.Abstractions, summary.NodesSaved)

			ui.Wait(ctx)

			return nil
		},
	}

	return cmd
}

// savingsAcrossRuns folds every saved report into an aggregate summary,
// spilling reports to disk so directories with many runs stay cheap.
func savingsAcrossRuns(reportsDir string) (domain.SavingsSummary, error) {
	spill, err := pkg.NewFileSpill[m.Report]()
	if err != nil {
		return domain.SavingsSummary{}, err
	}

	defer func() {
		if err := spill.Close(); err != nil {
			slog.Error("failed to close report spill", "error", err)
		}
	}()

	err = reportStore.LoadAll(reportsDir, func(report *m.Report) error {
		return spill.Append(*report)
	})
	if err != nil {
		return domain.SavingsSummary{}, fmt.Errorf("collect saved reports: %w", err)
	}

	return domain.SavingsFromReports(spill)
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
