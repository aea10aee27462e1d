package monitoring

import (
	"context"
	"slices"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/store"
	"github.com/sells-group/invoice-recon/internal/verify"
)

// MetricsSnapshot holds a point-in-time view of reconciliation activity.
type MetricsSnapshot struct {
	// Runs within the lookback window.
	RunsTotal     int     `json:"runs_total"`
	Reconciled    int     `json:"reconciled"`
	Flagged       int     `json:"flagged"`
	NotFound      int     `json:"not_found"`
	FlagRate      float64 `json:"flag_rate"`
	AvgMatchScore float64 `json:"avg_match_score"`
	AvgConfidence float64 `json:"avg_confidence"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the subset of store.Store the collector reads from.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run store.
type Collector struct {
	store RunLister
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st RunLister) *Collector {
	return &Collector{store: st, now: func() time.Time { return time.Now().UTC() }}
}

// maxRuns bounds a single collection.
const maxRuns = 10000

// Collect gathers a snapshot of run metrics over the given lookback window.
// Runs without a verdict count toward RunsTotal only. Not-found invoices are
// flagged but excluded from the score and confidence averages.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        maxRuns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalScore, totalConf float64
	scored := 0

	for _, r := range runs {
		if r.Verdict == nil {
			continue
		}
		snap.Reconciled++
		if r.Verdict.Flagged {
			snap.Flagged++
		}
		if slices.Contains(r.Verdict.Reasons, verify.NotFoundReason) {
			snap.NotFound++
			continue
		}
		totalScore += r.Verdict.MatchScore
		totalConf += r.Verdict.Confidence
		scored++
	}

	if snap.Reconciled > 0 {
		snap.FlagRate = float64(snap.Flagged) / float64(snap.Reconciled)
	}
	if scored > 0 {
		snap.AvgMatchScore = totalScore / float64(scored)
		snap.AvgConfidence = totalConf / float64(scored)
	}

	return snap, nil
}
