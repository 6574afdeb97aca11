package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/deal-engine/internal/intake"
	"github.com/sells-group/deal-engine/internal/model"
	"github.com/sells-group/deal-engine/internal/store"
)

var (
	ledgerStatus   string
	ledgerAgent    string
	ledgerLimit    int
	ledgerOperator string
	ledgerOut      string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and override rejected candidates",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ledger entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "audit", false)
		if err != nil {
			return err
		}
		defer env.Close()

		items, err := env.Ledger.List(ctx, ledgerFilter())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), items)
	},
}

var ledgerOverrideCmd = &cobra.Command{
	Use:   "override <id>",
	Short: "Approve a rejected candidate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "audit", false)
		if err != nil {
			return err
		}
		defer env.Close()

		item, err := env.Ledger.Override(ctx, args[0], ledgerOperator)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), item)
	},
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export ledger entries to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "audit", false)
		if err != nil {
			return err
		}
		defer env.Close()

		items, err := env.Ledger.List(ctx, ledgerFilter())
		if err != nil {
			return err
		}
		if err := exportLedger(ledgerOut, items); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d entries to %s\n", len(items), ledgerOut)
		return nil
	},
}

func ledgerFilter() store.RejectionFilter {
	return store.RejectionFilter{
		Status: model.AuditStatus(ledgerStatus),
		Agent:  ledgerAgent,
		Limit:  ledgerLimit,
	}
}

var ledgerHeader = []string{
	"id", "candidate_id", "title", "source", "status", "agent", "reason",
	"confidence", "can_override", "overridden_by", "overridden_at", "created_at",
}

// exportLedger writes items as one sheet with a header row.
func exportLedger(path string, items []model.RejectedItem) error {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		overriddenAt := ""
		if it.OverriddenAt != nil {
			overriddenAt = it.OverriddenAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			it.ID,
			it.CandidateID,
			it.Title,
			it.Source,
			string(it.Status()),
			it.RejectionAgent,
			it.RejectionReason,
			strconv.Itoa(it.ConfidenceScore),
			strconv.FormatBool(it.CanOverride),
			it.OverriddenBy,
			overriddenAt,
			it.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := intake.WriteXLSX(path, "ledger", ledgerHeader, rows); err != nil {
		return eris.Wrap(err, "export ledger")
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{ledgerListCmd, ledgerExportCmd} {
		c.Flags().StringVar(&ledgerStatus, "status", "", "pending_review or overridden (default: both)")
		c.Flags().StringVar(&ledgerAgent, "agent", "", "only entries rejected by this agent")
		c.Flags().IntVar(&ledgerLimit, "limit", 100, "max entries")
	}
	ledgerOverrideCmd.Flags().StringVar(&ledgerOperator, "operator", "", "operator approving the override")
	_ = ledgerOverrideCmd.MarkFlagRequired("operator")
	ledgerExportCmd.Flags().StringVar(&ledgerOut, "out", "ledger.xlsx", "output workbook path")

	ledgerCmd.AddCommand(ledgerListCmd, ledgerOverrideCmd, ledgerExportCmd)
	rootCmd.AddCommand(ledgerCmd)
}
