package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCatalogValidateBundled(t *testing.T) {
	out, err := runCommand(t, "catalog", "validate", filepath.Join("..", "..", "catalog"))
	require.NoError(t, err)
	assert.Contains(t, out, "(team-health)")
	assert.Contains(t, out, "catalog files valid")
}

func TestCatalogValidateRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("id: Not Valid\nname: x\n"), 0o644))

	out, err := runCommand(t, "catalog", "validate", dir)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL")
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")
	_, err := runCommand(t, "migrate", "--dsn", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
}
