//go:build linux

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
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	out, err := runCommand(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "[transport]")
	assert.Contains(t, string(body), "[reconnection]")
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("# mine"), 0o644))

	_, err := runCommand(t, "--config", path, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = runCommand(t, "--config", path, "config", "init", "--force")
	assert.NoError(t, err)
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[transport]\nrendezvous = \"custom\"\n"), 0o644))

	out, err := runCommand(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "rendezvous = 'custom'")
	assert.Contains(t, out, "[backpressure]")
}

func TestConfigShowRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[backpressure]\npolicy = \"never\"\n"), 0o644))

	_, err := runCommand(t, "--config", path, "config", "show")
	assert.Error(t, err)
}
