package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/deal-engine/internal/model"
	"github.com/sells-group/deal-engine/internal/rules"
	"github.com/sells-group/deal-engine/internal/store"
)

var (
	ruleDomain string
	ruleType   string
	ruleReason string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage source domain whitelist and blacklist rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List domain rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		list, err := st.ListDomainRules(ctx)
		if err != nil {
			return eris.Wrap(err, "list rules")
		}
		return printJSON(cmd.OutOrStdout(), list)
	},
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a domain rule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rule, err := addRule(ctx, st, model.DomainRule{
			Domain:   ruleDomain,
			RuleType: model.RuleType(ruleType),
			Reason:   ruleReason,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rule)
	},
}

var rulesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a domain rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.RemoveDomainRule(ctx, args[0]); err != nil {
			return eris.Wrap(err, "remove rule")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
		return nil
	},
}

// addRule validates and stores r with its domain normalized.
func addRule(ctx context.Context, st store.Store, r model.DomainRule) (*model.DomainRule, error) {
	if err := rules.ValidateRule(r); err != nil {
		return nil, err
	}
	r.Domain = rules.NormalizeDomain(r.Domain)
	if err := st.AddDomainRule(ctx, &r); err != nil {
		return nil, eris.Wrap(err, "add rule")
	}
	return &r, nil
}

func init() {
	rulesAddCmd.Flags().StringVar(&ruleDomain, "domain", "", "source domain")
	rulesAddCmd.Flags().StringVar(&ruleType, "type", "", "whitelist or blacklist")
	rulesAddCmd.Flags().StringVar(&ruleReason, "reason", "", "why the rule exists")
	_ = rulesAddCmd.MarkFlagRequired("domain")
	_ = rulesAddCmd.MarkFlagRequired("type")

	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesRemoveCmd)
	rootCmd.AddCommand(rulesCmd)
}
