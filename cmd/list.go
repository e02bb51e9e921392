package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"refract.dev/pkg/refract/internal/controller"
)

var listMinFrequencyFlag int

// listCmd represents the list command.
var listCmd = newListCmd()

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list corpus.jsonl",
		Short: "Rank candidate abstractions without rewriting",
		Long:  listLongDescription,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()

			path, err := corpusPath(args)
			if err != nil {
				return err
			}

			programs, _, err := loadPrograms(ctx, path)
			if err != nil {
				return err
			}

			miner, err := newMiner()
			if err != nil {
				return err
			}

			if err := ui.Start(ctx, controller.WithEstimateMode()); err != nil {
				return err
			}
			defer ui.Close(ctx)

			candidates, err := miner.Estimate(ctx, estimateArgs(programs))
			if err := ui.DisplayEstimation(ctx, candidates, err); err != nil {
				return err
			}

			ui.Wait(ctx)

			return nil
		},
	}

	configureListFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func configureListFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&listMinFrequencyFlag, minFrequencyFlag, viper.GetInt(minFrequencyKey), "minimum occurrences for a pattern to be reported")
	bindFlagToConfig(cmd.Flags().Lookup(minFrequencyFlag), minFrequencyKey)
}
