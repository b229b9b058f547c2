package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "migrate")
	assert.Contains(t, names, "tail")
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestMigrate_SQLite(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "m.db"))

	cmd := newRootCommand()
	cmd.SetArgs([]string{"migrate"})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, filepath.Join(dir, "m.db"))
}

func TestTail_RejectsMalformedIDs(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"tail", "--user", "nope", "--session", "00000000-0000-0000-0000-000000000001"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--user")
}
