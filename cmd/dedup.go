package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/deal-engine/internal/dedup"
)

var (
	dedupOperator    string
	dedupConfirm     bool
	dedupAddress     string
	dedupPrice       string
	dedupDescription string
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Inspect or purge the content dedup index",
}

var dedupCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether a listing's content has been seen",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fp := dedup.Fingerprint(dedupAddress, dedupPrice, dedupDescription)
		seen, err := dedup.NewStoreIndex(st).Seen(ctx, fp)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"fingerprint": fp,
			"duplicate":   seen,
		})
	},
}

var dedupPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Clear every recorded fingerprint",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !dedupConfirm {
			return eris.New("purge clears the whole index; pass --yes to confirm")
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		d := dedup.New(dedup.NewStoreIndex(st), nil)
		n, err := d.Size(ctx)
		if err != nil {
			return err
		}
		if err := d.Purge(ctx, dedupOperator); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d fingerprints\n", n)
		return nil
	},
}

func init() {
	dedupCheckCmd.Flags().StringVar(&dedupAddress, "address", "", "listing address")
	dedupCheckCmd.Flags().StringVar(&dedupPrice, "price", "", "listing price")
	dedupCheckCmd.Flags().StringVar(&dedupDescription, "description", "", "listing description")
	_ = dedupCheckCmd.MarkFlagRequired("address")

	dedupPurgeCmd.Flags().StringVar(&dedupOperator, "operator", "", "operator requesting the purge")
	dedupPurgeCmd.Flags().BoolVar(&dedupConfirm, "yes", false, "confirm the purge")
	_ = dedupPurgeCmd.MarkFlagRequired("operator")

	dedupCmd.AddCommand(dedupCheckCmd, dedupPurgeCmd)
	rootCmd.AddCommand(dedupCmd)
}
