package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/invoice-recon/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	query       TEXT NOT NULL,
	invoice_id  TEXT NOT NULL DEFAULT '',
	verdict     TEXT,
	explanation TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS approvals (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL,
	invoice_id       TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'pending',
	prior_confidence REAL,
	requested_at     DATETIME NOT NULL,
	confirmed_by     TEXT NOT NULL DEFAULT '',
	confirmed_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
CREATE INDEX IF NOT EXISTS idx_runs_invoice ON runs(invoice_id);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_approvals_invoice ON approvals(invoice_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, r *model.Run) error {
	prepareRun(r)

	data, err := marshalVerdict(r.Verdict)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal verdict")
	}
	var verdict any
	if data != nil {
		verdict = string(data)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, query, invoice_id, verdict, explanation, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.Query, r.InvoiceID, verdict, r.Explanation, r.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", r.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, query, invoice_id, verdict, explanation, created_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, session_id, query, invoice_id, verdict, explanation, created_at FROM runs WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.InvoiceID != "" {
		query += ` AND invoice_id = ?`
		args = append(args, filter.InvoiceID)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limitOf(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CreateApproval(ctx context.Context, a *model.Approval) error {
	prepareApproval(a)

	var prior any
	if a.PriorConfidence != nil {
		prior = *a.PriorConfidence
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approvals (id, session_id, invoice_id, status, prior_confidence, requested_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.InvoiceID, string(a.Status), prior, a.RequestedAt,
	)
	return eris.Wrapf(err, "sqlite: insert approval %s", a.ID)
}

func (s *SQLiteStore) GetApproval(ctx context.Context, id string) (*model.Approval, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, invoice_id, status, prior_confidence, requested_at, confirmed_by, confirmed_at FROM approvals WHERE id = ?`,
		id,
	)

	var (
		a           model.Approval
		status      string
		prior       sql.NullFloat64
		confirmedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.SessionID, &a.InvoiceID, &status, &prior, &a.RequestedAt, &a.ConfirmedBy, &confirmedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: approval %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan approval")
	}
	a.Status = model.ApprovalStatus(status)
	if prior.Valid {
		a.PriorConfidence = &prior.Float64
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time.UTC()
		a.ConfirmedAt = &t
	}
	a.RequestedAt = a.RequestedAt.UTC()
	return &a, nil
}

func (s *SQLiteStore) ConfirmApproval(ctx context.Context, id, by string) (*model.Approval, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE approvals SET status = ?, confirmed_by = ?, confirmed_at = ? WHERE id = ? AND status = ?`,
		string(model.ApprovalConfirmed), by, time.Now().UTC(), id, string(model.ApprovalPending),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: confirm approval %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Distinguish a missing approval from one already confirmed.
		if _, err := s.GetApproval(ctx, id); err != nil {
			return nil, err
		}
		return nil, eris.Wrapf(ErrAlreadyConfirmed, "sqlite: approval %s", id)
	}
	return s.GetApproval(ctx, id)
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var verdictJSON sql.NullString

	err := row.Scan(&r.ID, &r.SessionID, &r.Query, &r.InvoiceID, &verdictJSON, &r.Explanation, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.CreatedAt = r.CreatedAt.UTC()

	if verdictJSON.Valid {
		r.Verdict, err = unmarshalVerdict([]byte(verdictJSON.String))
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal verdict")
		}
	}
	return &r, nil
}

// marshalVerdict returns nil for a run without a verdict so the column
// stays NULL.
func marshalVerdict(v *model.VerifierResult) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalVerdict(data []byte) (*model.VerifierResult, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v model.VerifierResult
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
