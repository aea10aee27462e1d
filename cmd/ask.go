package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-recon/internal/model"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single reconciliation question",
	Long:  "Plans, retrieves, verifies and explains one question such as \"Why was invoice INV-123 flagged?\".",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		sid, _ := cmd.Flags().GetString("session")
		if sid == "" {
			sid = uuid.NewString()
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		ans, err := env.Pipeline.Handle(ctx, sid, strings.Join(args, " "))
		if err != nil {
			return eris.Wrap(err, "ask")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ans)
		}
		printAnswer(os.Stdout, ans)
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "", "session id (default: new random id)")
	askCmd.Flags().Bool("json", false, "print the full answer as JSON")
	rootCmd.AddCommand(askCmd)
}

// printAnswer writes the human-readable form of an answer.
func printAnswer(w io.Writer, ans *model.Answer) {
	if ans.Approval != nil {
		printApproval(w, ans.Approval)
		return
	}
	fmt.Fprintln(w, ans.Explanation)
	fmt.Fprintln(w)
	if ans.Verdict != nil {
		fmt.Fprintf(w, "Match score: %.2f | Verifier confidence: %.2f\n", ans.MatchScore, ans.VerifierConfidence)
	}
	fmt.Fprintf(w, "Session: %s\n", ans.SessionID)
	fmt.Fprintf(w, "Audit log: %s\n", ans.AuditLogPath)
}

func printApproval(w io.Writer, a *model.ApprovalResponse) {
	fmt.Fprintln(w, a.Message)
	if a.ApprovalID != "" {
		fmt.Fprintf(w, "Approval ID: %s\n", a.ApprovalID)
		fmt.Fprintf(w, "Policy: %s\n", a.Policy)
	}
	if a.PriorConfidence != nil {
		fmt.Fprintf(w, "Prior verifier confidence: %.2f\n", *a.PriorConfidence)
	}
	fmt.Fprintf(w, "Requires confirmation: %t\n", a.RequiresConfirmation)
	fmt.Fprintf(w, "Audit log: %s\n", a.AuditLogPath)
}
