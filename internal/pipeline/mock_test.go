package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/invoice-recon/internal/auxiliary"
	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/store"
)

// --- Auxiliary provider mock ---

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Lookup(ctx context.Context, q auxiliary.Query) []model.Signal {
	args := m.Called(ctx, q)
	s, _ := args.Get(0).([]model.Signal)
	return s
}

// --- Synthesizer mock ---

type mockSynthesizer struct {
	mock.Mock
}

func (m *mockSynthesizer) Render(ctx context.Context, query string, summary *model.EvidenceSummary, verdict *model.VerifierResult) string {
	args := m.Called(ctx, query, summary, verdict)
	return args.String(0)
}

// --- Record store mock ---

type mockRecords struct {
	mock.Mock
}

func (m *mockRecords) InvoiceLines(ctx context.Context, id string) ([]model.InvoiceLine, error) {
	args := m.Called(ctx, id)
	lines, _ := args.Get(0).([]model.InvoiceLine)
	return lines, args.Error(1)
}

func (m *mockRecords) POLines(ctx context.Context, pos []string) ([]model.POLine, error) {
	args := m.Called(ctx, pos)
	lines, _ := args.Get(0).([]model.POLine)
	return lines, args.Error(1)
}

func (m *mockRecords) ReceiptLines(ctx context.Context, pos []string) ([]model.ReceiptLine, error) {
	args := m.Called(ctx, pos)
	lines, _ := args.Get(0).([]model.ReceiptLine)
	return lines, args.Error(1)
}

// --- Run store that fails writes ---

type failingStore struct {
	*store.MemoryStore
	err error
}

func (f *failingStore) SaveRun(context.Context, *model.Run) error { return f.err }

func (f *failingStore) CreateApproval(context.Context, *model.Approval) error { return f.err }
