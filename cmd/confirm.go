package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var confirmCmd = &cobra.Command{
	Use:   "confirm <approval-id>",
	Short: "Confirm a pending approval request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		by, _ := cmd.Flags().GetString("by")

		a, err := env.Pipeline.Confirm(ctx, args[0], by)
		if err != nil {
			return eris.Wrap(err, "confirm")
		}

		fmt.Fprintf(os.Stdout, "Approval %s for %s confirmed by %s.\n", a.ID, a.InvoiceID, a.ConfirmedBy)
		return nil
	},
}

func init() {
	confirmCmd.Flags().String("by", "", "name of the person confirming")
	_ = confirmCmd.MarkFlagRequired("by")
	rootCmd.AddCommand(confirmCmd)
}
