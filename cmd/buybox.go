package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/deal-engine/internal/model"
)

var (
	buyboxFile     string
	buyboxInvestor string
)

var buyboxCmd = &cobra.Command{
	Use:   "buybox",
	Short: "Manage investor buy boxes",
}

var buyboxAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Save a buy box from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		box, err := readJSONFile[model.BuyBoxCriteria](buyboxFile)
		if err != nil {
			return eris.Wrap(err, "read buy box")
		}
		box.IsActive = true

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SaveBuyBox(ctx, box); err != nil {
			return eris.Wrap(err, "save buy box")
		}
		return printJSON(cmd.OutOrStdout(), box)
	},
}

var buyboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active buy boxes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		boxes, err := st.ListActiveBuyBoxes(ctx, buyboxInvestor)
		if err != nil {
			return eris.Wrap(err, "list buy boxes")
		}
		return printJSON(cmd.OutOrStdout(), boxes)
	},
}

var buyboxDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Deactivate a superseded buy box",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeactivateBuyBox(ctx, args[0]); err != nil {
			return eris.Wrap(err, "deactivate buy box")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s\n", args[0])
		return nil
	},
}

func init() {
	buyboxAddCmd.Flags().StringVar(&buyboxFile, "file", "", "buy box JSON file")
	_ = buyboxAddCmd.MarkFlagRequired("file")
	buyboxListCmd.Flags().StringVar(&buyboxInvestor, "investor", "", "only this investor's buy boxes")

	buyboxCmd.AddCommand(buyboxAddCmd, buyboxListCmd, buyboxDeactivateCmd)
	rootCmd.AddCommand(buyboxCmd)
}
