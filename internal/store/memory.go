package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-recon/internal/model"
)

// MemoryStore is a process-local Store used when no database is
// configured. Contents are lost on exit.
type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[string]model.Run
	approvals map[string]model.Approval
	now       func() time.Time
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		runs:      make(map[string]model.Run),
		approvals: make(map[string]model.Approval),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Ping(context.Context) error    { return nil }
func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Close() error                  { return nil }

func (m *MemoryStore) SaveRun(_ context.Context, r *model.Run) error {
	prepareRun(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = cloneRun(*r)
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "store: run %s", runID)
	}
	out := cloneRun(r)
	return &out, nil
}

func (m *MemoryStore) ListRuns(_ context.Context, f RunFilter) ([]model.Run, error) {
	m.mu.RLock()
	var runs []model.Run
	for _, r := range m.runs {
		if f.SessionID != "" && r.SessionID != f.SessionID {
			continue
		}
		if f.InvoiceID != "" && r.InvoiceID != f.InvoiceID {
			continue
		}
		if !f.CreatedAfter.IsZero() && r.CreatedAt.Before(f.CreatedAfter) {
			continue
		}
		runs = append(runs, cloneRun(r))
	}
	m.mu.RUnlock()

	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if f.Offset >= len(runs) {
		return nil, nil
	}
	runs = runs[f.Offset:]
	if n := limitOf(f); len(runs) > n {
		runs = runs[:n]
	}
	return runs, nil
}

func (m *MemoryStore) CreateApproval(_ context.Context, a *model.Approval) error {
	prepareApproval(a)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals[a.ID] = cloneApproval(*a)
	return nil
}

func (m *MemoryStore) GetApproval(_ context.Context, id string) (*model.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.approvals[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "store: approval %s", id)
	}
	out := cloneApproval(a)
	return &out, nil
}

func (m *MemoryStore) ConfirmApproval(_ context.Context, id, by string) (*model.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.approvals[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "store: approval %s", id)
	}
	if a.Status == model.ApprovalConfirmed {
		return nil, eris.Wrapf(ErrAlreadyConfirmed, "store: approval %s", id)
	}
	now := m.now()
	a.Status = model.ApprovalConfirmed
	a.ConfirmedBy = by
	a.ConfirmedAt = &now
	m.approvals[id] = a
	out := cloneApproval(a)
	return &out, nil
}

func cloneRun(r model.Run) model.Run {
	if r.Verdict != nil {
		v := *r.Verdict
		v.Reasons = append([]string(nil), v.Reasons...)
		r.Verdict = &v
	}
	return r
}

func cloneApproval(a model.Approval) model.Approval {
	if a.PriorConfidence != nil {
		c := *a.PriorConfidence
		a.PriorConfidence = &c
	}
	if a.ConfirmedAt != nil {
		t := *a.ConfirmedAt
		a.ConfirmedAt = &t
	}
	return a
}
