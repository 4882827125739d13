package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/softgate/rce-dispatcher/models"
)

// fakeQueue is an in-memory jobQueue fake that serves a fixed list of
// payloads, then blocks until ctx is cancelled (mirroring a real BLPop
// against an empty list once the backlog drains).
type fakeQueue struct {
	mu        sync.Mutex
	payloads  []string
	published []models.AnalysisNotification
	publishErr error
}

func (f *fakeQueue) Dequeue(ctx context.Context) (string, error) {
	f.mu.Lock()
	if len(f.payloads) > 0 {
		p := f.payloads[0]
		f.payloads = f.payloads[1:]
		f.mu.Unlock()
		return p, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return "", ctx.Err()
}

func (f *fakeQueue) PublishAnalysis(ctx context.Context, n models.AnalysisNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, n)
	return nil
}

// fakeStore is an in-memory recordStore fake tracking transition calls.
type fakeStore struct {
	mu               sync.Mutex
	processingCalls  []string
	terminalCalls    []string
	terminalOutcomes map[string]models.ExecutionOutcome
	markProcessingErr error
	markTerminalErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{terminalOutcomes: map[string]models.ExecutionOutcome{}}
}

func (f *fakeStore) MarkProcessing(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markProcessingErr != nil {
		return f.markProcessingErr
	}
	f.processingCalls = append(f.processingCalls, jobID)
	return nil
}

func (f *fakeStore) MarkTerminal(ctx context.Context, jobID string, outcome models.ExecutionOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markTerminalErr != nil {
		return f.markTerminalErr
	}
	f.terminalCalls = append(f.terminalCalls, jobID)
	f.terminalOutcomes[jobID] = outcome
	return nil
}

// fakeExecutor is an in-memory jobExecutor fake returning a canned outcome.
type fakeExecutor struct {
	mu       sync.Mutex
	outcome  models.ExecutionOutcome
	executed []models.Job
}

func (f *fakeExecutor) Execute(ctx context.Context, job models.Job) models.ExecutionOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, job)
	return f.outcome
}

func mustMarshal(t *testing.T, job models.Job) string {
	t.Helper()
	b, err := json.Marshal(job)
	require.NoError(t, err)
	return string(b)
}

func TestDispatcherProcessesJobEndToEnd(t *testing.T) {
	job := models.Job{JobID: "job-1", Language: "python", Code: "print(1)"}
	q := &fakeQueue{payloads: []string{mustMarshal(t, job)}}
	store := newFakeStore()
	exec := &fakeExecutor{outcome: models.ExecutionOutcome{Status: models.StatusCompleted, Output: "1"}}

	d := New(q, store, exec, 1, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	d.Start(ctx)
	<-ctx.Done()
	d.Stop(time.Second)

	assert.Contains(t, store.processingCalls, "job-1")
	assert.Contains(t, store.terminalCalls, "job-1")
	assert.Equal(t, models.StatusCompleted, store.terminalOutcomes["job-1"].Status)
	require.Len(t, q.published, 1)
	assert.Equal(t, "job-1", q.published[0].JobID)
}

func TestDispatcherDropsMalformedPayloadWithoutTouchingStore(t *testing.T) {
	q := &fakeQueue{payloads: []string{"not valid json"}}
	store := newFakeStore()
	exec := &fakeExecutor{outcome: models.ExecutionOutcome{Status: models.StatusCompleted}}

	d := New(q, store, exec, 1, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	d.Start(ctx)
	<-ctx.Done()
	d.Stop(time.Second)

	assert.Empty(t, store.processingCalls)
	assert.Empty(t, store.terminalCalls)
	assert.Empty(t, exec.executed)
}

func TestDispatcherWithholdsNotificationWhenTerminalWriteFails(t *testing.T) {
	job := models.Job{JobID: "job-2", Language: "python", Code: "print(1)"}
	q := &fakeQueue{payloads: []string{mustMarshal(t, job)}}
	store := newFakeStore()
	store.markTerminalErr = errors.New("connection reset")
	exec := &fakeExecutor{outcome: models.ExecutionOutcome{Status: models.StatusCompleted}}

	d := New(q, store, exec, 1, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	d.Start(ctx)
	<-ctx.Done()
	d.Stop(time.Second)

	assert.Empty(t, q.published, "no broadcast notification without a successful terminal write")
}

func TestDispatcherSkipsExecutionWhenMarkProcessingFails(t *testing.T) {
	job := models.Job{JobID: "job-3", Language: "python", Code: "print(1)"}
	q := &fakeQueue{payloads: []string{mustMarshal(t, job)}}
	store := newFakeStore()
	store.markProcessingErr = errors.New("connection reset")
	exec := &fakeExecutor{outcome: models.ExecutionOutcome{Status: models.StatusCompleted}}

	d := New(q, store, exec, 1, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	d.Start(ctx)
	<-ctx.Done()
	d.Stop(time.Second)

	assert.Empty(t, exec.executed, "executor must not run for a job that couldn't be marked processing")
}

func TestDispatcherPublishFailureIsLoggedNotFatal(t *testing.T) {
	job := models.Job{JobID: "job-4", Language: "python", Code: "print(1)"}
	q := &fakeQueue{payloads: []string{mustMarshal(t, job)}, publishErr: errors.New("channel unavailable")}
	store := newFakeStore()
	exec := &fakeExecutor{outcome: models.ExecutionOutcome{Status: models.StatusCompleted}}

	d := New(q, store, exec, 1, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	d.Start(ctx)
	<-ctx.Done()
	d.Stop(time.Second)

	assert.Contains(t, store.terminalCalls, "job-4", "record store write still happens even if publish would fail")
}

func TestDispatcherDefaultsConcurrencyToOne(t *testing.T) {
	d := New(&fakeQueue{}, newFakeStore(), &fakeExecutor{}, 0, zaptest.NewLogger(t))
	assert.Equal(t, 1, d.concurrency)
}
