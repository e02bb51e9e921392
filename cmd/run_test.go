package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func writeClampCorpus(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "corpus.jsonl")
	content := `{"id":"a","source":"(clamp v 1 10)"}
{"id":"b","source":"(clamp v 2 10)"}
{"id":"c","source":"(clamp v 3 10)"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func commandFixture(t *testing.T) (string, string, *bytes.Buffer) {
	t.Helper()

	dir := t.TempDir()
	corpus := writeClampCorpus(t, dir)
	reports := filepath.Join(dir, "reports")

	viper.Set(logFilenameKey, filepath.Join(dir, "refract.log"))
	t.Cleanup(func() {
		viper.Set(logFilenameKey, defaultLogFilename)
		viper.Set(outputFlagName, defaultReportsDir)
		viper.Set(oracleCommandKey, []string{})
	})

	output := &bytes.Buffer{}
	rootCmd.SetOut(output)
	rootCmd.SetErr(output)

	return corpus, reports, output
}

func TestRunCommandWithoutValidation(t *testing.T) {
	corpus, reports, output := commandFixture(t)

	rootCmd.SetArgs([]string{"run", "--skip-validation", "-o", reports, corpus})
	require.NoError(t, rootCmd.Execute())
	require.Contains(t, output.String(), "fn_1")
	require.Contains(t, output.String(), "Total savings: 6 node(s)")

	files, err := filepath.Glob(filepath.Join(reports, "report-*.yaml"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	// The saved report is what view surfaces.
	output.Reset()
	rootCmd.SetArgs([]string{"view", "-o", reports})
	require.NoError(t, rootCmd.Execute())
	require.Contains(t, output.String(), "Across 1 run(s): 1 abstraction(s), 6 node(s) saved")
}

func TestRunCommandOracleVeto(t *testing.T) {
	corpus, reports, output := commandFixture(t)

	// An oracle that echoes its input reports different output for the
	// rewritten source, so the abstraction is vetoed.
	rootCmd.SetArgs([]string{
		"run", "--skip-validation=false", "--oracle", "sh,-c,cat -", "-o", reports, corpus,
	})
	require.NoError(t, rootCmd.Execute())
	require.Contains(t, output.String(), "rejected")
	require.NotContains(t, output.String(), "accepted")
}

func TestListCommandRanksCandidates(t *testing.T) {
	corpus, _, output := commandFixture(t)

	rootCmd.SetArgs([]string{"list", corpus})
	require.NoError(t, rootCmd.Execute())
	require.Contains(t, output.String(), "RANK")
	require.Contains(t, output.String(), "CANDIDATES 1")
}

func TestRunCommandMissingCorpus(t *testing.T) {
	_, _, _ = commandFixture(t)

	rootCmd.SetArgs([]string{"run", "--skip-validation", filepath.Join(t.TempDir(), "absent.jsonl")})
	require.Error(t, rootCmd.Execute())
}
