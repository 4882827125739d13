package records

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softgate/rce-dispatcher/errs"
	"github.com/softgate/rce-dispatcher/models"
)

// fakeQuerier is an in-memory querier fake covering the ExecContext-only
// write paths (Insert, MarkProcessing, MarkTerminal). Get relies on
// *sql.Row, a concrete type only the database/sql package itself can
// construct, so it is not faked and has no test here (see DESIGN.md).
type fakeQuerier struct {
	execCalls []execCall
	execErr   error
}

type execCall struct {
	query string
	args  []interface{}
}

func (f *fakeQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.execCalls = append(f.execCalls, execCall{query: query, args: args})
	if f.execErr != nil {
		return nil, f.execErr
	}
	return nil, nil
}

func (f *fakeQuerier) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func (f *fakeQuerier) Close() error { return nil }

func TestInsertUsesOnConflictDoNothing(t *testing.T) {
	fq := &fakeQuerier{}
	s := &Store{db: fq}

	err := s.Insert(context.Background(), models.Job{JobID: "job-1", Language: "python", SubmittedAt: time.Now().Format(time.RFC3339)})

	require.NoError(t, err)
	require.Len(t, fq.execCalls, 1)
	assert.Contains(t, fq.execCalls[0].query, "ON CONFLICT (job_id) DO NOTHING")
	assert.Equal(t, "job-1", fq.execCalls[0].args[0])
}

func TestMarkProcessingSetsStatusAndStartedAt(t *testing.T) {
	fq := &fakeQuerier{}
	s := &Store{db: fq}

	err := s.MarkProcessing(context.Background(), "job-2")

	require.NoError(t, err)
	require.Len(t, fq.execCalls, 1)
	assert.Contains(t, fq.execCalls[0].query, "status = 'processing'")
	assert.Contains(t, fq.execCalls[0].query, "started_at = now()")
	assert.Equal(t, "job-2", fq.execCalls[0].args[0])
}

func TestMarkTerminalWritesAllOutcomeFields(t *testing.T) {
	fq := &fakeQuerier{}
	s := &Store{db: fq}

	outcome := models.ExecutionOutcome{
		Status:        models.StatusCompleted,
		Output:        "5050",
		ExitCode:      0,
		ExecutionTime: 250 * time.Millisecond,
	}
	err := s.MarkTerminal(context.Background(), "job-3", outcome)

	require.NoError(t, err)
	require.Len(t, fq.execCalls, 1)
	call := fq.execCalls[0]
	assert.Equal(t, "job-3", call.args[0])
	assert.Equal(t, "completed", call.args[1])
	assert.Equal(t, "5050", call.args[2])
	assert.Equal(t, 0, call.args[3])
	assert.Equal(t, int64(250), call.args[4])
	assert.Nil(t, call.args[5], "empty Error should be written as NULL, never an empty string")
}

func TestMarkTerminalWritesErrorWhenPresent(t *testing.T) {
	fq := &fakeQuerier{}
	s := &Store{db: fq}

	outcome := models.ExecutionOutcome{Status: models.StatusFailed, Error: "unsupported language: brainfuck"}
	err := s.MarkTerminal(context.Background(), "job-4", outcome)

	require.NoError(t, err)
	assert.Equal(t, "unsupported language: brainfuck", fq.execCalls[0].args[5])
}

func TestMarkTerminalWrapsUnderlyingError(t *testing.T) {
	fq := &fakeQuerier{execErr: errors.New("connection reset")}
	s := &Store{db: fq}

	err := s.MarkTerminal(context.Background(), "job-5", models.ExecutionOutcome{Status: models.StatusFailed})

	assert.ErrorIs(t, err, errs.ErrRecordStoreUnreachable)
}
