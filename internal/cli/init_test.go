package cli

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func newInitTestContext(t *testing.T, args []string) *cli.Context {
	t.Helper()
	cmd := InitCommand()
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	for _, f := range cmd.Flags {
		require.NoError(t, f.Apply(fs))
	}
	require.NoError(t, fs.Parse(args))
	return cli.NewContext(cli.NewApp(), fs, nil)
}

func TestInitActionWritesScaffold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "campers.yaml")
	t.Setenv("CAMPERS_CONFIG", path)

	err := initAction(newInitTestContext(t, nil))
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "defaults:")
	assert.Contains(t, string(contents), "provider: aws")
}

func TestInitActionRefusesToOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "campers.yaml")
	t.Setenv("CAMPERS_CONFIG", path)
	require.NoError(t, os.WriteFile(path, []byte("existing: true\n"), 0o644))

	err := initAction(newInitTestContext(t, nil))
	require.Error(t, err)

	contents, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "existing: true\n", string(contents))
}

func TestInitActionForceOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "campers.yaml")
	t.Setenv("CAMPERS_CONFIG", path)
	require.NoError(t, os.WriteFile(path, []byte("existing: true\n"), 0o644))

	err := initAction(newInitTestContext(t, []string{"--force"}))
	require.NoError(t, err)

	contents, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(contents), "defaults:")
}
