// Package records is the PostgreSQL-backed submission record store. It
// performs exactly the two transitions SPEC_FULL.md §3 describes:
// queued→processing and processing→terminal, both as partial UPDATEs that
// only ever set new columns, never unset ones already written. Grounded on
// backend/services/db_service.go's $N-parameterized database/sql +
// github.com/lib/pq usage, restyled around a single `executions` table
// keyed by a TEXT jobId rather than a BIGSERIAL id.
package records

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/softgate/rce-dispatcher/errs"
	"github.com/softgate/rce-dispatcher/models"
)

// Schema is the DDL for the executions table, applied idempotently at
// startup the same way DBService.InitSchema does for the teacher's
// functions/function_invocations tables.
const Schema = `
CREATE TABLE IF NOT EXISTS executions (
	job_id             TEXT PRIMARY KEY,
	language           TEXT NOT NULL,
	status             TEXT NOT NULL,
	output             TEXT,
	exit_code          INTEGER,
	execution_time_ms  BIGINT,
	error              TEXT,
	submitted_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at         TIMESTAMPTZ,
	completed_at       TIMESTAMPTZ
);
`

// querier is the narrow *sql.DB surface this package drives, isolated for
// the same substitution-in-tests reason as queue.redisCmdable.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	Close() error
}

// Store is the Postgres-backed record store.
type Store struct {
	db querier
}

// Connect opens a connection pool against connStr and verifies it with a
// Ping, matching NewDBService's connect-then-ping contract.
func Connect(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrRecordStoreUnreachable, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrRecordStoreUnreachable, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// InitSchema creates the executions table if it doesn't already exist.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// Insert writes the initial queued row for a freshly dequeued job. The
// submission API is responsible for the original queued-row insert per
// SPEC_FULL.md §2 ("external collaborator"); this exists for standalone
// testing and for operators running the dispatcher against an
// otherwise-empty table.
func (s *Store) Insert(ctx context.Context, job models.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (job_id, language, status, submitted_at)
		VALUES ($1, $2, 'queued', $3)
		ON CONFLICT (job_id) DO NOTHING
	`, job.JobID, job.Language, job.SubmittedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrRecordStoreUnreachable, err)
	}
	return nil
}

// MarkProcessing performs the queued→processing transition, setting
// started_at. It sets only status and started_at; the outcome columns are
// left to the terminal transition.
func (s *Store) MarkProcessing(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE executions
		SET status = 'processing', started_at = now()
		WHERE job_id = $1
	`, jobID)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrRecordStoreUnreachable, err)
	}
	return nil
}

// MarkTerminal performs the processing→{completed|failed|timeout}
// transition, writing every outcome field in a single partial UPDATE.
func (s *Store) MarkTerminal(ctx context.Context, jobID string, outcome models.ExecutionOutcome) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE executions
		SET status = $2,
		    output = $3,
		    exit_code = $4,
		    execution_time_ms = $5,
		    error = $6,
		    completed_at = now()
		WHERE job_id = $1
	`, jobID, string(outcome.Status), outcome.Output, outcome.ExitCode,
		outcome.ExecutionTime.Milliseconds(), nullIfEmpty(outcome.Error))
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrRecordStoreUnreachable, err)
	}
	return nil
}

// Get retrieves a submission record by jobID, returning (nil, nil) if no
// such row exists, matching GetFunction's not-found convention.
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, language, status, output, exit_code, execution_time_ms, error, submitted_at, started_at, completed_at
		FROM executions WHERE job_id = $1
	`, jobID)

	var rec Record
	var output, errMsg sql.NullString
	var exitCode sql.NullInt64
	var execTimeMs sql.NullInt64
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&rec.JobID, &rec.Language, &rec.Status, &output, &exitCode, &execTimeMs, &errMsg, &rec.SubmittedAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrRecordStoreUnreachable, err)
	}

	if output.Valid {
		rec.Output = output.String
	}
	if errMsg.Valid {
		rec.Error = errMsg.String
	}
	if exitCode.Valid {
		rec.ExitCode = int(exitCode.Int64)
	}
	if execTimeMs.Valid {
		rec.ExecutionTimeMs = execTimeMs.Int64
	}
	if startedAt.Valid {
		rec.StartedAt = startedAt.Time
	}
	if completedAt.Valid {
		rec.CompletedAt = completedAt.Time
	}

	return &rec, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
