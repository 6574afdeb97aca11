package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/deal-engine/internal/model"
)

func subcommandNames(c *cobra.Command) map[string]bool {
	names := make(map[string]bool)
	for _, sub := range c.Commands() {
		names[sub.Name()] = true
	}
	return names
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(rootCmd)

	expected := []string{"audit", "reconcile", "match", "buybox", "ledger", "dedup", "rules", "migrate", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "deal-engine", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestAuditCommand_Flags(t *testing.T) {
	flag := auditCmd.Flags().Lookup("input")
	require.NotNil(t, flag, "audit command should have --input flag")

	persist := auditCmd.Flags().Lookup("persist")
	require.NotNil(t, persist)
	assert.Equal(t, "false", persist.DefValue)
}

func TestReconcileCommand_Flags(t *testing.T) {
	for _, name := range []string{"address", "sqft", "price", "bedrooms", "bathrooms", "year-built", "lot-size"} {
		assert.NotNil(t, reconcileCmd.Flags().Lookup(name), "reconcile should have --%s flag", name)
	}
}

func TestFlagName(t *testing.T) {
	assert.Equal(t, "year-built", flagName(model.FieldYearBuilt))
	assert.Equal(t, "lot-size", flagName(model.FieldLotSizeSqft))
	assert.Equal(t, model.FieldSqft, flagName(model.FieldSqft))
}

func TestMatchCommand_Flags(t *testing.T) {
	for _, name := range []string{"property", "buybox", "investor"} {
		assert.NotNil(t, matchCmd.Flags().Lookup(name), "match should have --%s flag", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestLedgerCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(ledgerCmd)
	for _, name := range []string{"list", "override", "export"} {
		assert.True(t, names[name], "ledger should have subcommand %q", name)
	}

	limit := ledgerListCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "100", limit.DefValue)
	assert.NotNil(t, ledgerOverrideCmd.Flags().Lookup("operator"))
	assert.NotNil(t, ledgerExportCmd.Flags().Lookup("out"))
}

func TestDedupCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(dedupCmd)
	assert.True(t, names["check"])
	assert.True(t, names["purge"])

	for _, name := range []string{"operator", "yes"} {
		assert.NotNil(t, dedupPurgeCmd.Flags().Lookup(name), "dedup purge should have --%s flag", name)
	}
}

func TestRulesCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(rulesCmd)
	for _, name := range []string{"list", "add", "remove"} {
		assert.True(t, names[name], "rules should have subcommand %q", name)
	}
}

func TestBuyBoxCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(buyboxCmd)
	for _, name := range []string{"add", "list", "deactivate"} {
		assert.True(t, names[name], "buybox should have subcommand %q", name)
	}
}

func TestDedupPurge_RequiresConfirmation(t *testing.T) {
	dedupConfirm = false
	err := dedupPurgeCmd.RunE(dedupPurgeCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}
