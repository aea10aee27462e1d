//go:build !integration

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/store"
)

func TestRunChat_QuestionThenApprove(t *testing.T) {
	p := newTestPipeline(t)
	in := strings.NewReader("Why was invoice INV-123 flagged?\n\napprove it\nexit\nnot reached\n")
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), p, "chat-1", in, &out))

	got := out.String()
	assert.Contains(t, got, "Session chat-1.")
	assert.Contains(t, got, "Invoice status: FLAGGED")
	assert.Contains(t, got, "Request to approve INV-123 recorded.")
	assert.Contains(t, got, "Requires confirmation: true")

	entries, err := p.Trail().Read("chat-1")
	require.NoError(t, err)
	assert.Equal(t, model.StageApprove, entries[len(entries)-1].Stage)

	runs, err := p.Store().ListRuns(context.Background(), store.RunFilter{SessionID: "chat-1"})
	require.NoError(t, err)
	assert.Len(t, runs, 1, "only the reconciliation query is a run")
}

func TestRunChat_EOF(t *testing.T) {
	p := newTestPipeline(t)
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), p, "chat-2", strings.NewReader("Check INV-125"), &out))
	assert.Contains(t, out.String(), "Invoice status: OK")
}

func TestRunChat_ErrorContinues(t *testing.T) {
	p := newTestPipeline(t)
	var out bytes.Buffer

	// An unsafe session id fails every query without ending the loop.
	require.NoError(t, runChat(context.Background(), p, "../x", strings.NewReader("INV-123\nINV-125\nquit\n"), &out))
	assert.Equal(t, 2, strings.Count(out.String(), "error: "))
}

func TestRunChat_ApproveWithoutContext(t *testing.T) {
	p := newTestPipeline(t)
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), p, "chat-3", strings.NewReader("approve\n"), &out))
	assert.Contains(t, out.String(), "No prior invoice context to approve.")
	assert.NotContains(t, out.String(), "Approval ID:")
}
