package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vmonitor-agent/internal/config"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(context.Background(), append([]string{appName}, args...))
	return out.String(), err
}

func TestEndpointCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCLI(t, "--config", path, "add", "primary", "wss://collector.example.com/ws?secret=leak", "s3cr3t")
	require.NoError(t, err)
	require.Contains(t, out, `endpoint "primary" added`)

	_, err = runCLI(t, "--config", path, "add", "--disabled", "backup", "ws://10.0.0.2:8080", "other")
	require.NoError(t, err)

	out, err = runCLI(t, "--config", path, "list")
	require.NoError(t, err)
	require.Contains(t, out, "NAME")
	require.Contains(t, out, "wss://collector.example.com/ws")
	require.NotContains(t, out, "s3cr3t")
	require.NotContains(t, out, "leak")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasSuffix(lines[2], "false"))

	_, err = runCLI(t, "--config", path, "enable", "backup")
	require.NoError(t, err)
	_, err = runCLI(t, "--config", path, "disable", "primary")
	require.NoError(t, err)
	_, err = runCLI(t, "--config", path, "remove", "primary")
	require.NoError(t, err)

	entries, err := config.ListEndpoints(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "backup", entries[0].Name)
	require.True(t, entries[0].Enabled)

	_, err = runCLI(t, "--config", path, "remove", "primary")
	require.ErrorIs(t, err, config.ErrEndpointNotFound)

	_, err = runCLI(t, "--config", path, "add", "only-two-args", "ws://h")
	require.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
format: json
endpoints:
  - name: main
    server: wss://collector.example.com
    secret: topsecret
`), 0o600))

	out, err := runCLI(t, "--config", path, "check")
	require.NoError(t, err)
	require.Contains(t, out, "config ok: format=json")
	require.Contains(t, out, "main wss://collector.example.com enabled=true")
	require.NotContains(t, out, "topsecret")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("endpoints: []\n"), 0o600))
	_, err = runCLI(t, "--config", bad, "check")
	require.ErrorIs(t, err, config.ErrNoEnabledEndpoints)
}

func TestConfigPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.toml")
	t.Setenv(config.PathEnv, path)

	_, err := runCLI(t, "add", "e", "ws://h", "k")
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, config.HardcodedVersion)
}
