package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Request approval of the session's last reconciled invoice",
	Long:  "Records an approval request. Nothing is approved until a human runs confirm with the returned approval id.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		sid, _ := cmd.Flags().GetString("session")
		invoice, _ := cmd.Flags().GetString("invoice")

		resp, err := env.Pipeline.Approve(ctx, sid, invoice)
		if err != nil {
			return eris.Wrap(err, "approve")
		}
		printApproval(os.Stdout, resp)
		return nil
	},
}

func init() {
	approveCmd.Flags().String("session", "", "session id holding the verdict")
	approveCmd.Flags().String("invoice", "", "invoice id; must match the session's last invoice")
	_ = approveCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(approveCmd)
}
