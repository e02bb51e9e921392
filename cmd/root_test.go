package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestCorpusPath(t *testing.T) {
	path, err := corpusPath([]string{"corpus.jsonl"})
	require.NoError(t, err)
	require.Equal(t, "corpus.jsonl", path)

	_, err = corpusPath(nil)
	require.Error(t, err)

	_, err = corpusPath([]string{"a", "b"})
	require.Error(t, err)
}

func TestLoadProgramsSkipsUnparseable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	content := `{"id":"good","source":"(f 1)"}
{"id":"broken","source":"(f 1"}
{"id":"fine","source":"(g 2)"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	programs, skipped, err := loadPrograms(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 1, skipped)
	require.Len(t, programs, 2)
	require.Equal(t, "good", programs[0].ID)
	require.Equal(t, "fine", programs[1].ID)
}

func TestNewMinerBackendSelection(t *testing.T) {
	t.Cleanup(func() {
		viper.Set(backendConfigKey, backendBuiltin)
		viper.Set(externalCommandKey, []string{})
	})

	_, err := newMiner()
	require.NoError(t, err)

	viper.Set(backendConfigKey, backendExternal)
	_, err = newMiner()
	require.ErrorContains(t, err, externalCommandKey)

	viper.Set(externalCommandKey, []string{"engine", "--mine"})
	_, err = newMiner()
	require.NoError(t, err)

	viper.Set(backendConfigKey, "bogus")
	_, err = newMiner()
	require.ErrorContains(t, err, "unknown backend")
}

func TestVersionCommand(t *testing.T) {
	buffer := &bytes.Buffer{}

	cmd := newVersionCmd()
	cmd.SetOut(buffer)
	cmd.Run(cmd, nil)

	require.Contains(t, buffer.String(), "refract version")
}
