package monitoring

import (
	"context"

	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/store"
)

// mockRunLister implements RunLister for testing.
type mockRunLister struct {
	runs    []model.Run
	listErr error
	last    store.RunFilter
}

func (m *mockRunLister) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	m.last = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.Run
	for _, r := range m.runs {
		if !filter.CreatedAfter.IsZero() && r.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}
