package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/deal-engine/internal/intake"
	"github.com/sells-group/deal-engine/internal/model"
)

var (
	matchProperty string
	matchBuyBox   string
	matchInvestor string
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match a property to a buy box",
	Long:  "Evaluates a property against one buy box file, or ranks it against every active buy box in the store when --buybox is omitted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		prop, err := readJSONFile[model.Property](matchProperty)
		if err != nil {
			return eris.Wrap(err, "read property")
		}

		if matchBuyBox != "" {
			box, err := readJSONFile[model.BuyBoxCriteria](matchBuyBox)
			if err != nil {
				return eris.Wrap(err, "read buy box")
			}
			engine := newMatcher(nil)
			locate(ctx, engine, prop)
			return printJSON(cmd.OutOrStdout(), engine.Match(prop, box))
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		boxes, err := st.ListActiveBuyBoxes(ctx, matchInvestor)
		if err != nil {
			return eris.Wrap(err, "list buy boxes")
		}
		engine := newMatcher(nil)
		locate(ctx, engine, prop)
		return printJSON(cmd.OutOrStdout(), engine.Rank(prop, boxes))
	},
}

func readJSONFile[T any](path string) (*T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open file")
	}
	defer f.Close() //nolint:errcheck
	return intake.DecodeJSONObject[T](f)
}

func init() {
	matchCmd.Flags().StringVar(&matchProperty, "property", "", "property JSON file")
	matchCmd.Flags().StringVar(&matchBuyBox, "buybox", "", "buy box JSON file (default: all active buy boxes)")
	matchCmd.Flags().StringVar(&matchInvestor, "investor", "", "limit ranking to one investor's buy boxes")
	_ = matchCmd.MarkFlagRequired("property")
	rootCmd.AddCommand(matchCmd)
}
