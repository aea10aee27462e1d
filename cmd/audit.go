package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-recon/internal/audit"
	"github.com/sells-group/invoice-recon/internal/model"
)

var auditCmd = &cobra.Command{
	Use:   "audit <session-id>",
	Short: "Print a session's audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trail, err := audit.New(cfg.Audit.Dir, audit.Layout(cfg.Audit.Layout))
		if err != nil {
			return err
		}

		entries, err := trail.Read(args[0])
		if err != nil {
			return eris.Wrap(err, "audit")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No audit entries found.")
			return nil
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		}
		formatAuditEntries(os.Stdout, entries)
		return nil
	},
}

func init() {
	auditCmd.Flags().Bool("json", false, "print entries as JSON lines")
	rootCmd.AddCommand(auditCmd)
}

// formatAuditEntries writes one line per entry with compact payloads.
func formatAuditEntries(w io.Writer, entries []model.AuditEntry) {
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-14s in=%s out=%s\n",
			e.Timestamp.Format(time.RFC3339Nano), e.Stage, compact(e.Input), compact(e.Output))
	}
}

func compact(v any) string {
	if v == nil {
		return "-"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	const limit = 160
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
