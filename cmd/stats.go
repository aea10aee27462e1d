package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-recon/internal/monitoring"
	"github.com/sells-group/invoice-recon/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recent reconciliation runs",
	Long:  "Reports flag rate, not-found lookups and average match score and confidence over a lookback window, and lists the alerts the monitoring thresholds would raise.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close() //nolint:errcheck

		hours, _ := cmd.Flags().GetInt("hours")
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackWindowHours
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "stats")
		}
		alerts := monitoring.NewAlerter(cfg.Monitoring, nil).Evaluate(snap)

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"metrics": snap, "alerts": alerts})
		}
		formatStats(os.Stdout, snap, alerts)
		return nil
	},
}

func init() {
	statsCmd.Flags().Int("hours", 0, "lookback window in hours (default from config)")
	statsCmd.Flags().Bool("json", false, "print metrics and alerts as JSON")
	rootCmd.AddCommand(statsCmd)
}

// formatStats writes a human-readable summary of a snapshot and its alerts.
func formatStats(w io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	fmt.Fprintf(w, "Runs (last %dh):     %d\n", snap.LookbackHours, snap.RunsTotal)
	fmt.Fprintf(w, "Reconciled:          %d\n", snap.Reconciled)
	fmt.Fprintf(w, "Flagged:             %d (%.1f%%)\n", snap.Flagged, snap.FlagRate*100)
	fmt.Fprintf(w, "Not found:           %d\n", snap.NotFound)
	fmt.Fprintf(w, "Avg match score:     %.2f\n", snap.AvgMatchScore)
	fmt.Fprintf(w, "Avg confidence:      %.2f\n", snap.AvgConfidence)
	for _, a := range alerts {
		fmt.Fprintf(w, "ALERT [%s] %s\n", a.Severity, a.Message)
	}
}
