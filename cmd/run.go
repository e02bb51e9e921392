package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"refract.dev/pkg/refract/internal/controller"
	"refract.dev/pkg/refract/internal/domain"
)

var runParallelFlag int
var runSkipValidationFlag bool
var runBackendFlag string
var runOracleFlag []string

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run corpus.jsonl",
		Short: "Mine abstractions and rewrite the corpus",
		Long:  runLongDescription,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()

			path, err := corpusPath(args)
			if err != nil {
				return err
			}

			programs, skipped, err := loadPrograms(ctx, path)
			if err != nil {
				return err
			}

			miner, err := newMiner()
			if err != nil {
				return err
			}

			if err := ui.Start(ctx, controller.WithMineMode()); err != nil {
				return err
			}
			defer ui.Close(ctx)

			threads := viper.GetInt(runParallelConfigKey)
			ui.DisplayConcurrencyInfo(ctx, threads, len(programs))

			report, err := miner.Mine(ctx, domain.MineArgs{
				Programs:        programs,
				SkippedRecords:  skipped,
				Config:          mineConfig(),
				ValidateRetries: viper.GetInt(validateRetriesKey),
				ValidateTimeout: validateTimeout(),
				SkipValidation:  viper.GetBool(skipValidateKey),
			})
			if err != nil {
				return err
			}

			if err := reportStore.Save(viper.GetString(outputFlagName), report); err != nil {
				return err
			}

			if err := ui.DisplayReport(ctx, report); err != nil {
				return err
			}

			ui.Wait(ctx)

			return nil
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&runParallelFlag, runParallelFlagName, "p", viper.GetInt(runParallelConfigKey), "number of parallel workers for mining and validation")
	bindFlagToConfig(cmd.Flags().Lookup(runParallelFlagName), runParallelConfigKey)

	cmd.Flags().BoolVar(&runSkipValidationFlag, skipValidateFlag, viper.GetBool(skipValidateKey), "skip oracle validation of rewritten programs")
	bindFlagToConfig(cmd.Flags().Lookup(skipValidateFlag), skipValidateKey)

	cmd.Flags().StringVar(&runBackendFlag, backendFlagName, viper.GetString(backendConfigKey), "pattern discovery backend (builtin or external)")
	bindFlagToConfig(cmd.Flags().Lookup(backendFlagName), backendConfigKey)

	cmd.Flags().StringSliceVar(&runOracleFlag, oracleFlagName, viper.GetStringSlice(oracleCommandKey), "oracle command reading a program on stdin and printing its output")
	bindFlagToConfig(cmd.Flags().Lookup(oracleFlagName), oracleCommandKey)
}
