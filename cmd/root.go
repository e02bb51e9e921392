// Package cmd provides the root command and CLI setup for refract.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"refract.dev/pkg/refract/internal/adapter"
	"refract.dev/pkg/refract/internal/controller"
	"refract.dev/pkg/refract/internal/domain"
	m "refract.dev/pkg/refract/internal/model"
)

var corpusStore adapter.CorpusStore
var parser adapter.Parser
var printer domain.Printer
var reportStore adapter.ReportStore
var ui controller.UI

// reportsOutputDirFlag is a root-level flag shared by commands that read/write reports.
var reportsOutputDirFlag string

// verboseFlag raises the log level to debug when set.
var verboseFlag bool

func init() {
	configureRootFlags(rootCmd)

	// Initialize shared dependencies.
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	corpusStore = adapter.NewLocalCorpusStore()
	parser = adapter.NewSexprParser()
	printer = adapter.NewSexprPrinter()
	reportStore = adapter.NewReportStore()
}

const corpusHelp = `The corpus is a JSON Lines file, one program per line:
  {"id": "prog-1", "source": "(let x 1 (print x))"}`

const rootLongDescription = `Refract mines recurring structure across a corpus of programs and
extracts it into shared helper functions, rewriting each program to
call them. Every rewrite is checked against a behavioral oracle before
it is kept.

` + corpusHelp

const runLongDescription = `Run the full pipeline on a corpus: mine recurring subtrees, generalize
them into parameterized helpers, rewrite the programs and validate the
result against the oracle.

` + corpusHelp

const listLongDescription = `Mine and rank candidate abstractions without rewriting anything.

` + corpusHelp

// rootCmd represents the base command when called without any subcommands.
var rootCmd = baseRootCmd()

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refract",
		Short: "Cross-program abstraction miner",
		Long:  rootLongDescription,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(viper.GetString(logFilenameKey), viper.GetBool(logVerboseKey))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&reportsOutputDirFlag, outputFlagName, "o",
			viper.GetString(outputFlagName),
			"output directory for mining reports",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", viper.GetBool(logVerboseKey), "log at debug level")
	bindFlagToConfig(cmd.PersistentFlags().Lookup("verbose"), logVerboseKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadPrograms ingests and parses the corpus. Records that fail to
// parse are skipped with a warning, matching the ingestion contract for
// malformed lines.
func loadPrograms(ctx context.Context, path string) ([]*m.Program, int, error) {
	records, skipped, err := corpusStore.Load(ctx, path)
	if err != nil {
		return nil, 0, err
	}

	programs := make([]*m.Program, 0, len(records))

	for _, record := range records {
		roots, err := parser.Parse(ctx, record.Source)
		if err != nil {
			slog.Warn("skipping unparseable program", "id", record.ID, "error", err)

			skipped++

			continue
		}

		programs = append(programs, &m.Program{ID: record.ID, Roots: roots})
	}

	return programs, skipped, nil
}

func mineConfig() domain.MineConfig {
	return domain.MineConfig{
		MinFrequency:  viper.GetInt(minFrequencyKey),
		MinSize:       viper.GetInt(minSizeKey),
		MaxSize:       viper.GetInt(maxSizeKey),
		MaxHoles:      viper.GetInt(maxHolesKey),
		SkeletonDepth: viper.GetInt(skeletonDepthKey),
		Threads:       viper.GetInt(runParallelConfigKey),
	}
}

func estimateArgs(programs []*m.Program) domain.MineArgs {
	return domain.MineArgs{Programs: programs, Config: mineConfig()}
}

// newMiner assembles the pipeline from the configured backend and
// oracle. An empty oracle command leaves validation in skipped state.
func newMiner() (domain.Miner, error) {
	var backend domain.Backend

	switch name := viper.GetString(backendConfigKey); name {
	case backendBuiltin:
		backend = domain.NewBuiltinBackend()
	case backendExternal:
		command := viper.GetStringSlice(externalCommandKey)
		if len(command) == 0 {
			return nil, fmt.Errorf("%s is %q but %s is empty", backendConfigKey, backendExternal, externalCommandKey)
		}

		backend = adapter.NewExternalBackend(command, parser, printer)
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}

	var oracle domain.Oracle

	if command := viper.GetStringSlice(oracleCommandKey); len(command) > 0 {
		oracle = adapter.NewExecOracle(command, validateTimeout())
	}

	return domain.NewMiner(backend, oracle, printer), nil
}

func corpusPath(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected exactly one corpus file argument")
	}

	return args[0], nil
}
