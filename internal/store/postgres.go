package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-recon/internal/db"
	"github.com/sells-group/invoice-recon/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id  TEXT NOT NULL,
	query       TEXT NOT NULL,
	invoice_id  TEXT NOT NULL DEFAULT '',
	verdict     JSONB,
	explanation TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS approvals (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id       TEXT NOT NULL,
	invoice_id       TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'pending',
	prior_confidence DOUBLE PRECISION,
	requested_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	confirmed_by     TEXT NOT NULL DEFAULT '',
	confirmed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
CREATE INDEX IF NOT EXISTS idx_runs_invoice ON runs(invoice_id);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_approvals_invoice ON approvals(invoice_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, r *model.Run) error {
	prepareRun(r)

	verdict, err := marshalVerdict(r.Verdict)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal verdict")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, session_id, query, invoice_id, verdict, explanation, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.SessionID, r.Query, r.InvoiceID, verdict, r.Explanation, r.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert run %s", r.ID)
}

const runColumns = `id, session_id, query, invoice_id, verdict, explanation, created_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanPGRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE ($1 = '' OR session_id = $1) AND ($2 = '' OR invoice_id = $2)
		AND created_at >= $3
		ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5`

	rows, err := s.pool.Query(ctx, query, filter.SessionID, filter.InvoiceID, filter.CreatedAfter.UTC(), limitOf(filter), max(filter.Offset, 0))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPGRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CreateApproval(ctx context.Context, a *model.Approval) error {
	prepareApproval(a)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO approvals (id, session_id, invoice_id, status, prior_confidence, requested_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.SessionID, a.InvoiceID, string(a.Status), a.PriorConfidence, a.RequestedAt,
	)
	return eris.Wrapf(err, "postgres: insert approval %s", a.ID)
}

func (s *PostgresStore) GetApproval(ctx context.Context, id string) (*model.Approval, error) {
	var (
		a      model.Approval
		status string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, invoice_id, status, prior_confidence, requested_at, confirmed_by, confirmed_at FROM approvals WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.SessionID, &a.InvoiceID, &status, &a.PriorConfidence, &a.RequestedAt, &a.ConfirmedBy, &a.ConfirmedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get approval %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get approval %s", id)
	}
	a.Status = model.ApprovalStatus(status)
	return &a, nil
}

func (s *PostgresStore) ConfirmApproval(ctx context.Context, id, by string) (*model.Approval, error) {
	var (
		a      model.Approval
		status string
	)
	err := s.pool.QueryRow(ctx,
		`UPDATE approvals SET status = $1, confirmed_by = $2, confirmed_at = $3
		 WHERE id = $4 AND status = $5
		 RETURNING id, session_id, invoice_id, status, prior_confidence, requested_at, confirmed_by, confirmed_at`,
		string(model.ApprovalConfirmed), by, time.Now().UTC(), id, string(model.ApprovalPending),
	).Scan(&a.ID, &a.SessionID, &a.InvoiceID, &status, &a.PriorConfidence, &a.RequestedAt, &a.ConfirmedBy, &a.ConfirmedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing approval from one already confirmed.
		if _, err := s.GetApproval(ctx, id); err != nil {
			return nil, err
		}
		return nil, eris.Wrapf(ErrAlreadyConfirmed, "postgres: approval %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: confirm approval %s", id)
	}
	a.Status = model.ApprovalStatus(status)
	return &a, nil
}

func scanPGRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var verdictJSON []byte

	if err := row.Scan(&r.ID, &r.SessionID, &r.Query, &r.InvoiceID, &verdictJSON, &r.Explanation, &r.CreatedAt); err != nil {
		return nil, err
	}
	v, err := unmarshalVerdict(verdictJSON)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal verdict")
	}
	r.Verdict = v
	return &r, nil
}
