package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/store"
	"github.com/sells-group/invoice-recon/internal/verify"
)

func TestCollector_EmptyStore(t *testing.T) {
	c := NewCollector(&mockRunLister{})

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.RunsTotal)
	assert.Equal(t, 0, snap.Reconciled)
	assert.Equal(t, 0.0, snap.FlagRate)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_RunMetrics(t *testing.T) {
	now := time.Now().UTC()
	st := &mockRunLister{
		runs: []model.Run{
			{ID: "1", CreatedAt: now.Add(-1 * time.Hour), Verdict: &model.VerifierResult{Flagged: true, MatchScore: 0.4, Confidence: 0.8}},
			{ID: "2", CreatedAt: now.Add(-2 * time.Hour), Verdict: &model.VerifierResult{Flagged: false, MatchScore: 0.0, Confidence: 0.6}},
			{ID: "3", CreatedAt: now.Add(-3 * time.Hour), Verdict: &model.VerifierResult{Flagged: true, Confidence: 0.9, Reasons: []string{verify.NotFoundReason}}},
			// No invoice in the question.
			{ID: "4", CreatedAt: now.Add(-30 * time.Minute)},
			// Outside lookback window.
			{ID: "5", CreatedAt: now.Add(-48 * time.Hour), Verdict: &model.VerifierResult{Flagged: true}},
		},
	}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 3, snap.Reconciled)
	assert.Equal(t, 2, snap.Flagged)
	assert.Equal(t, 1, snap.NotFound)
	assert.InDelta(t, 2.0/3.0, snap.FlagRate, 0.001)
	assert.InDelta(t, 0.2, snap.AvgMatchScore, 0.001)
	assert.InDelta(t, 0.7, snap.AvgConfidence, 0.001)
	assert.Equal(t, maxRuns, st.last.Limit)
	assert.WithinDuration(t, now.Add(-24*time.Hour), st.last.CreatedAfter, time.Minute)
}

func TestCollector_ListError(t *testing.T) {
	c := NewCollector(&mockRunLister{listErr: errors.New("db down")})

	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}

func TestCollector_MemoryStore(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.SaveRun(ctx, &model.Run{SessionID: "s1", InvoiceID: "INV-123", Verdict: &model.VerifierResult{Flagged: true, MatchScore: 0.5, Confidence: 0.9}}))
	require.NoError(t, st.SaveRun(ctx, &model.Run{SessionID: "s1", Query: "policy?"}))

	snap, err := NewCollector(st).Collect(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.RunsTotal)
	assert.Equal(t, 1, snap.Flagged)
	assert.InDelta(t, 1.0, snap.FlagRate, 1e-9)
}
