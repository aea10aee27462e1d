package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List reconciliation run history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close() //nolint:errcheck

		session, _ := cmd.Flags().GetString("session")
		invoice, _ := cmd.Flags().GetString("invoice")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			SessionID: session,
			InvoiceID: invoice,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func init() {
	runsCmd.Flags().String("session", "", "filter by session id")
	runsCmd.Flags().String("invoice", "", "filter by invoice id")
	runsCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsCmd.Flags().Bool("json", false, "print runs as JSON")
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a table of runs.
func formatRunsList(w io.Writer, runs []model.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSESSION\tINVOICE\tSTATUS\tSCORE\tCONFIDENCE\tCREATED")
	for _, r := range runs {
		invoice, status, score, conf := "-", "-", "-", "-"
		if r.InvoiceID != "" {
			invoice = r.InvoiceID
		}
		if r.Verdict != nil {
			status = r.Verdict.Status()
			score = fmt.Sprintf("%.2f", r.Verdict.MatchScore)
			conf = fmt.Sprintf("%.2f", r.Verdict.Confidence)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID), shortID(r.SessionID), invoice, status, score, conf,
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	tw.Flush() //nolint:errcheck
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
