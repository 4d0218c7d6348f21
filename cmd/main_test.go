// File: cmd/main_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nextron-mcp/internal/browser"
	"github.com/xkilldash9x/nextron-mcp/internal/browser/browsertest"
	"github.com/xkilldash9x/nextron-mcp/internal/config"
	"github.com/xkilldash9x/nextron-mcp/internal/observability"
)

// resetForTest isolates a test from package state, the working directory and
// the environment variables the configuration layer reads.
func resetForTest(t *testing.T) {
	t.Helper()

	cfgFile = ""
	newLauncher = browser.PlaywrightLauncher
	serveFunc = runServe
	t.Cleanup(func() {
		newLauncher = browser.PlaywrightLauncher
		serveFunc = runServe
	})

	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	// Run from an empty directory so no config.yaml or .env is picked up.
	t.Chdir(t.TempDir())

	for _, key := range []string{
		"EMAIL", "PASSWORD", "NEXTRON_EMAIL", "NEXTRON_PASSWORD",
		"NEXTRON_PORTAL_EMAIL", "NEXTRON_PORTAL_PASSWORD", "NEXTRON_PORTAL_BASE_URL",
		"LOG_LEVEL", "NEXTRON_LOGGER_LEVEL",
		"MCP_TRANSPORT", "MCP_HOST", "MCP_PORT",
		"NEXTRON_TRANSPORT_MODE", "NEXTRON_TRANSPORT_HOST", "NEXTRON_TRANSPORT_PORT",
	} {
		unsetEnv(t, key)
	}
	t.Setenv("LOG_LEVEL", "fatal")
}

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	prev, had := os.LookupEnv(key)
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() {
		if had {
			os.Setenv(key, prev)
		} else {
			os.Unsetenv(key)
		}
	})
}

// useFakeBrowser makes serve launch a browsertest engine.
func useFakeBrowser(t *testing.T) *browsertest.Launcher {
	t.Helper()
	launcher := browsertest.NewLauncher()
	newLauncher = func(config.BrowserConfig, *zap.Logger) browser.Launcher { return launcher.Launch }
	return launcher
}

// writeFile writes content into the current directory and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path, err := filepath.Abs(name)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// findCommand returns the named subcommand of root.
func findCommand(t *testing.T, root *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, c := range root.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("command %q not registered", name)
	return nil
}

// captureServeConfig replaces serve's RunE so a test can inspect the
// configuration the root command produced.
func captureServeConfig(t *testing.T, root *cobra.Command) **config.Config {
	t.Helper()
	var captured *config.Config
	serve := findCommand(t, root, "serve")
	serve.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfigFromContext(cmd.Context())
		captured = cfg
		return err
	}
	return &captured
}

// execute runs root with args and returns the combined output.
func execute(ctx context.Context, root *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}
