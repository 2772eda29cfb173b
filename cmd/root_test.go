package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"contracts", "leads", "metrics", "insight", "snapshot", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "crm-report", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestContractsCommand_Flags(t *testing.T) {
	for _, name := range []string{"month", "start", "end", "dept", "xlsx", "save-snapshot"} {
		require.NotNil(t, contractsCmd.Flags().Lookup(name), "contracts command should have --%s flag", name)
	}
}

func TestLeadsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range leadsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["daily"])
	assert.True(t, names["count"])
}

func TestSnapshotCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range snapshotCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "latest", "prune"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}

	keep := snapshotPruneCmd.Flags().Lookup("keep")
	require.NotNil(t, keep)
	assert.Equal(t, "10", keep.DefValue)
}

func TestInsightCommand_Flags(t *testing.T) {
	flag := insightCmd.Flags().Lookup("target-tablets")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestSplitMonths(t *testing.T) {
	assert.Nil(t, splitMonths(""))
	assert.Equal(t, []string{"2026-06", "2026-07"}, splitMonths("2026-06, 2026-07"))
	assert.Equal(t, []string{"2026-08"}, splitMonths(",2026-08,"))
}
