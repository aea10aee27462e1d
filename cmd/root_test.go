//go:build !integration

package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-recon/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"ask", "chat", "approve", "confirm", "audit", "runs", "import", "serve", "stats"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "recon", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestAskCommand_Flags(t *testing.T) {
	flag := askCmd.Flags().Lookup("session")
	require.NotNil(t, flag, "ask command should have --session flag")
	assert.Equal(t, "", flag.DefValue)

	flag = askCmd.Flags().Lookup("json")
	require.NotNil(t, flag, "ask command should have --json flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestAskCommand_RequiresQuestion(t *testing.T) {
	require.NotNil(t, askCmd.Args)
	assert.Error(t, askCmd.Args(askCmd, nil))
	assert.NoError(t, askCmd.Args(askCmd, []string{"Why", "was", "INV-123", "flagged?"}))
}

func TestApproveCommand_Flags(t *testing.T) {
	require.NotNil(t, approveCmd.Flags().Lookup("session"))
	require.NotNil(t, approveCmd.Flags().Lookup("invoice"))

	ann := approveCmd.Flags().Lookup("session").Annotations
	assert.Contains(t, ann, cobra.BashCompOneRequiredFlag)
}

func TestConfirmCommand_Args(t *testing.T) {
	require.NotNil(t, confirmCmd.Flags().Lookup("by"))
	assert.Error(t, confirmCmd.Args(confirmCmd, nil))
	assert.NoError(t, confirmCmd.Args(confirmCmd, []string{"abc"}))
}

func TestRunsCommand_Flags(t *testing.T) {
	flag := runsCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "runs command should have --limit flag")
	assert.Equal(t, "50", flag.DefValue)
	require.NotNil(t, runsCmd.Flags().Lookup("session"))
	require.NotNil(t, runsCmd.Flags().Lookup("invoice"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestImportCommand_Flags(t *testing.T) {
	flag := importCmd.Flags().Lookup("dir")
	require.NotNil(t, flag, "import command should have --dir flag")
	assert.Equal(t, "", flag.DefValue)
}

func TestRootCommand_LogOverrides(t *testing.T) {
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("log-format"))

	t.Cleanup(func() { logLevel, logFormat = "", "" })

	lc := config.LogConfig{Level: "info", Format: "json"}
	applyLogOverrides(&lc)
	assert.Equal(t, config.LogConfig{Level: "info", Format: "json"}, lc)

	logLevel = "debug"
	applyLogOverrides(&lc)
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "json", lc.Format)

	logFormat = "console"
	applyLogOverrides(&lc)
	assert.Equal(t, "console", lc.Format)
}
