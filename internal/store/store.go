// Package store persists reconciliation runs and approval requests. It is
// an outer-surface record: the audit trail remains the source of truth.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-recon/internal/config"
	"github.com/sells-group/invoice-recon/internal/model"
)

var (
	// ErrNotFound is returned when a run or approval does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrAlreadyConfirmed is returned when confirming a confirmed approval.
	ErrAlreadyConfirmed = eris.New("store: approval already confirmed")
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	SessionID    string    `json:"session_id,omitempty"`
	InvoiceID    string    `json:"invoice_id,omitempty"`
	// CreatedAfter keeps runs created at or after this time when non-zero.
	CreatedAfter time.Time `json:"created_after,omitempty"`
	Limit        int       `json:"limit,omitempty"`
	Offset       int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for runs and approvals.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Approvals
	CreateApproval(ctx context.Context, a *model.Approval) error
	GetApproval(ctx context.Context, id string) (*model.Approval, error)
	ConfirmApproval(ctx context.Context, id, by string) (*model.Approval, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg and applies its migrations.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "none":
		s = NewMemory()
	case "sqlite":
		s, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

// prepareRun fills the generated fields of a new run.
func prepareRun(r *model.Run) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
}

// prepareApproval fills the generated fields of a new approval. New
// approvals are always pending.
func prepareApproval(a *model.Approval) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.RequestedAt.IsZero() {
		a.RequestedAt = time.Now().UTC()
	}
	a.Status = model.ApprovalPending
	a.ConfirmedBy = ""
	a.ConfirmedAt = nil
}

func limitOf(f RunFilter) int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}
