package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findCommand(t *testing.T, parent *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, sub := range parent.Commands() {
		if sub.Name() == name {
			return sub
		}
	}
	t.Fatalf("command %q not registered under %q", name, parent.Name())
	return nil
}

func TestRootRegistersCommands(t *testing.T) {
	findCommand(t, rootCmd, "stream")
	findCommand(t, rootCmd, "browse")

	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestBrowseRegistersSubcommands(t *testing.T) {
	for _, name := range []string{"create", "navigate", "click", "type", "extract", "plan", "tree", "close"} {
		findCommand(t, browseCmd, name)
	}

	assert.NotNil(t, browseCmd.PersistentFlags().Lookup("session"))
	assert.NotNil(t, findCommand(t, browseCmd, "click").Flags().Lookup("verify"))
	assert.NotNil(t, findCommand(t, browseCmd, "type").Flags().Lookup("clear"))
	assert.NotNil(t, findCommand(t, browseCmd, "plan").Flags().Lookup("max-retries"))
}

func TestStreamRequiresExactlyOneArg(t *testing.T) {
	assert.Error(t, streamCmd.Args(streamCmd, nil))
	assert.NoError(t, streamCmd.Args(streamCmd, []string{"s1"}))
	assert.Error(t, streamCmd.Args(streamCmd, []string{"a", "b"}))
}
