package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"migrate", "ingest", "filters", "keywords", "series"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "catalog-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
}

func TestIngestCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"file", "site", "sheet", "workers"} {
		flag := ingestCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "ingest should have --%s flag", flagName)
	}
}

func TestFiltersCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range filtersCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"validate", "load", "show"} {
		assert.True(t, names[name], "filters should have subcommand %q", name)
	}
}

func TestKeywordsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range keywordsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"bind", "resolve", "import"} {
		assert.True(t, names[name], "keywords should have subcommand %q", name)
	}
}

func TestKeywordsBindCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"site", "keyword", "publisher"} {
		flag := keywordsBindCmd.Flags().Lookup(flagName)
		require.NotNil(t, flag, "keywords bind should have --%s flag", flagName)
	}
}

func TestSeriesCommand_HasOrganize(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range seriesCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["organize"])
}
