package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/deal-engine/internal/model"
)

var (
	reconcileAddress string
	reconcileFields  = map[string]*float64{}
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare declared values for one address with public records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		declared := make(map[string]float64)
		for field, v := range reconcileFields {
			if cmd.Flags().Changed(flagName(field)) {
				declared[field] = *v
			}
		}

		if err := cfg.Validate("audit"); err != nil {
			return err
		}
		svc := newReconciler(nil, false)
		result, err := svc.Reconcile(ctx, reconcileAddress, declared)
		if err != nil {
			return eris.Wrap(err, "reconcile")
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

// flagName maps a declared field key to its flag.
func flagName(field string) string {
	switch field {
	case model.FieldYearBuilt:
		return "year-built"
	case model.FieldLotSizeSqft:
		return "lot-size"
	}
	return field
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileAddress, "address", "", "full property address")
	for _, field := range []string{
		model.FieldSqft,
		model.FieldPrice,
		model.FieldBedrooms,
		model.FieldBathrooms,
		model.FieldYearBuilt,
		model.FieldLotSizeSqft,
	} {
		v := new(float64)
		reconcileFields[field] = v
		reconcileCmd.Flags().Float64Var(v, flagName(field), 0, "declared "+field)
	}
	_ = reconcileCmd.MarkFlagRequired("address")
	rootCmd.AddCommand(reconcileCmd)
}
