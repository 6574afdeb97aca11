package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/deal-engine/internal/intake"
)

var (
	auditInput   string
	auditPersist bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit a batch of candidate listings",
	Long:  "Reads candidates from a JSON, CSV or XLSX file, audits them and prints the batch report as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		candidates, err := intake.Load(ctx, auditInput)
		if err != nil {
			return eris.Wrap(err, "load candidates")
		}

		env, err := initEngine(ctx, "audit", auditPersist)
		if err != nil {
			return err
		}
		defer env.Close()

		batch, runErr := env.Pipeline.Run(ctx, candidates)
		if batch != nil {
			if err := printJSON(cmd.OutOrStdout(), batch); err != nil {
				return eris.Wrap(err, "write batch report")
			}
		}
		return runErr
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditInput, "input", "", "candidates file (.json, .csv or .xlsx)")
	auditCmd.Flags().BoolVar(&auditPersist, "persist", false, "save reports to the store")
	_ = auditCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(auditCmd)
}
