//go:build !integration

package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/monitoring"
)

func TestFormatRunsList(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "0123456789abcdef",
			SessionID: "s1",
			InvoiceID: "INV-123",
			Verdict:   &model.VerifierResult{Flagged: true, MatchScore: 0.9, Confidence: 0.87},
			CreatedAt: created,
		},
		{ID: "short", SessionID: "s2", CreatedAt: created},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)

	assert.Contains(t, lines[0], "INVOICE")
	assert.Contains(t, lines[1], "01234567")
	assert.NotContains(t, lines[1], "89abcdef")
	assert.Contains(t, lines[1], "FLAGGED")
	assert.Contains(t, lines[1], "0.90")
	assert.Contains(t, lines[1], "0.87")
	assert.Contains(t, lines[1], "2026-03-01 09:30:00")
	dashes := 0
	for _, f := range strings.Fields(lines[2]) {
		if f == "-" {
			dashes++
		}
	}
	assert.Equal(t, 4, dashes, lines[2])
}

func TestFormatRunsList_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, nil)
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestFormatAuditEntries(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	entries := []model.AuditEntry{
		{Timestamp: ts, SessionID: "s1", Stage: model.StageQuery, Input: json.RawMessage(`{"query":"INV-123"}`)},
		{Timestamp: ts, SessionID: "s1", Stage: model.StageVerify, Output: json.RawMessage(`{"flagged":true}`)},
	}

	var buf bytes.Buffer
	formatAuditEntries(&buf, entries)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "query")
	assert.Contains(t, lines[0], `in={"query":"INV-123"} out=-`)
	assert.Contains(t, lines[1], `in=- out={"flagged":true}`)
}

func TestCompact_Truncates(t *testing.T) {
	long := json.RawMessage(`"` + strings.Repeat("x", 400) + `"`)
	got := compact(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, got, 163)
}

func TestPrintAnswer(t *testing.T) {
	var buf bytes.Buffer
	printAnswer(&buf, &model.Answer{
		SessionID:          "s1",
		Explanation:        "Invoice status: OK",
		Verdict:            &model.VerifierResult{MatchScore: 0.1, Confidence: 0.55},
		MatchScore:         0.1,
		VerifierConfidence: 0.55,
		AuditLogPath:       "logs/audit-s1.jsonl",
	})

	out := buf.String()
	assert.Contains(t, out, "Invoice status: OK")
	assert.Contains(t, out, "Match score: 0.10 | Verifier confidence: 0.55")
	assert.Contains(t, out, "Audit log: logs/audit-s1.jsonl")
}

func TestPrintAnswer_Approval(t *testing.T) {
	conf := 0.87
	var buf bytes.Buffer
	printAnswer(&buf, &model.Answer{
		SessionID: "s1",
		Approval: &model.ApprovalResponse{
			Message:              "Request to approve INV-123 recorded.",
			ApprovalID:           "a-1",
			Policy:               "Human-in-the-loop required for financial actions.",
			PriorConfidence:      &conf,
			RequiresConfirmation: true,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Approval ID: a-1")
	assert.Contains(t, out, "Prior verifier confidence: 0.87")
	assert.Contains(t, out, "Requires confirmation: true")
	assert.NotContains(t, out, "Match score")
}

func TestFormatStats(t *testing.T) {
	snap := &monitoring.MetricsSnapshot{
		RunsTotal:     10,
		Reconciled:    8,
		Flagged:       6,
		FlagRate:      0.75,
		AvgMatchScore: 0.31,
		AvgConfidence: 0.82,
		LookbackHours: 24,
	}
	alerts := []monitoring.Alert{{Type: monitoring.AlertFlagRate, Severity: "high", Message: "too many flags"}}

	var buf bytes.Buffer
	formatStats(&buf, snap, alerts)

	out := buf.String()
	assert.Contains(t, out, "Runs (last 24h):     10")
	assert.Contains(t, out, "Flagged:             6 (75.0%)")
	assert.Contains(t, out, "Avg confidence:      0.82")
	assert.Contains(t, out, "ALERT [high] too many flags")
}
