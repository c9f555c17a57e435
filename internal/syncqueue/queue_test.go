package syncqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pilatesloop/backend/internal/telemetry/metrics"
	"github.com/pilatesloop/backend/internal/workoutlog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

type committerMock struct {
	mu       sync.Mutex
	commits  []string
	failures map[string]int // log ID -> remaining failures

	gate        chan struct{}
	started     chan struct{}
	startedOnce sync.Once
}

func newCommitterMock() *committerMock {
	return &committerMock{
		failures: make(map[string]int),
	}
}

func (c *committerMock) CommitWorkout(_ context.Context, workoutLog workoutlog.Log) error {
	if c.gate != nil {
		c.startedOnce.Do(func() { close(c.started) })
		<-c.gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failures[workoutLog.ID] > 0 {
		c.failures[workoutLog.ID]--
		return errors.New("server unreachable")
	}

	c.commits = append(c.commits, workoutLog.ID)
	return nil
}

func (c *committerMock) committed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commits...)
}

func newQueuedLog(userID int) workoutlog.Log {
	return workoutlog.Log{
		ID:              uuid.NewString(),
		UserID:          userID,
		WorkoutDate:     time.Now().Add(-3 * time.Hour),
		DurationMinutes: 40,
		Type:            workoutlog.TypeMat,
		RPE:             5,
	}
}

func TestQueue_EnqueueIdempotent(t *testing.T) {
	store := NewMemoryStore()
	committer := newCommitterMock()
	queue := NewQueue(store, committer, metrics.NewTestManager(), 3)

	ctx := context.Background()
	workoutLog := newQueuedLog(1)

	entry, err := queue.Enqueue(ctx, workoutLog)
	require.NoError(t, err)
	assert.Equal(t, workoutLog.ID, entry.ID)
	assert.Equal(t, StatusPending, entry.Status)

	// same log again, still one entry
	_, err = queue.Enqueue(ctx, workoutLog)
	require.NoError(t, err)

	entries, err := queue.Entries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, queue.Sync(ctx))
	assert.Equal(t, []string{workoutLog.ID}, committer.committed())

	entries, err = queue.Entries(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQueue_FIFOPerUser(t *testing.T) {
	store := NewMemoryStore()
	committer := newCommitterMock()
	queue := NewQueue(store, committer, metrics.NewTestManager(), 3)

	ctx := context.Background()
	logA := newQueuedLog(1)
	logB := newQueuedLog(1)
	logC := newQueuedLog(1)

	for _, l := range []workoutlog.Log{logA, logB, logC} {
		_, err := queue.Enqueue(ctx, l)
		require.NoError(t, err)
	}

	require.NoError(t, queue.Sync(ctx))
	assert.Equal(t, []string{logA.ID, logB.ID, logC.ID}, committer.committed())
}

func TestQueue_FailureDoesNotBlockLaterEntries(t *testing.T) {
	store := NewMemoryStore()
	committer := newCommitterMock()
	queue := NewQueue(store, committer, metrics.NewTestManager(), 3)

	ctx := context.Background()
	logA := newQueuedLog(1)
	logB := newQueuedLog(1)
	logC := newQueuedLog(1)
	committer.failures[logB.ID] = 1

	for _, l := range []workoutlog.Log{logA, logB, logC} {
		_, err := queue.Enqueue(ctx, l)
		require.NoError(t, err)
	}

	require.NoError(t, queue.Sync(ctx))

	// A and C went through, B is still queued as failed
	assert.Equal(t, []string{logA.ID, logC.ID}, committer.committed())
	entries, err := queue.Entries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, logB.ID, entries[0].ID)
	assert.Equal(t, StatusFailed, entries[0].Status)
	assert.Equal(t, 1, entries[0].Attempts)
	assert.NotEmpty(t, entries[0].LastError)

	// next pass retries B successfully
	require.NoError(t, queue.Sync(ctx))
	assert.Equal(t, []string{logA.ID, logC.ID, logB.ID}, committer.committed())
	entries, err = queue.Entries(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQueue_FailedEntryRetriedEveryPass(t *testing.T) {
	store := NewMemoryStore()
	committer := newCommitterMock()
	queue := NewQueue(store, committer, metrics.NewTestManager(), 2)

	ctx := context.Background()
	workoutLog := newQueuedLog(1)
	// fails twice, well past the warn threshold, then recovers
	committer.failures[workoutLog.ID] = 2

	_, err := queue.Enqueue(ctx, workoutLog)
	require.NoError(t, err)

	require.NoError(t, queue.Sync(ctx))
	require.NoError(t, queue.Sync(ctx))

	entries, err := queue.Entries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Attempts)

	// still eligible, the third pass commits it
	require.NoError(t, queue.Sync(ctx))
	assert.Equal(t, []string{workoutLog.ID}, committer.committed())

	entries, err = queue.Entries(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQueue_AbandonIsTheOnlyDropPath(t *testing.T) {
	store := NewMemoryStore()
	committer := newCommitterMock()
	queue := NewQueue(store, committer, metrics.NewTestManager(), 2)

	ctx := context.Background()
	workoutLog := newQueuedLog(1)
	committer.failures[workoutLog.ID] = 100 // never succeeds

	_, err := queue.Enqueue(ctx, workoutLog)
	require.NoError(t, err)

	// every pass keeps retrying, the entry is never dropped on its own
	for i := 0; i < 4; i++ {
		require.NoError(t, queue.Sync(ctx))
	}

	entries, err := queue.Entries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 4, entries[0].Attempts)
	assert.Equal(t, StatusFailed, entries[0].Status)

	require.NoError(t, queue.Abandon(ctx, 1, workoutLog.ID))
	entries, err = queue.Entries(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQueue_ZeroWarnThresholdStillDelivers(t *testing.T) {
	store := NewMemoryStore()
	committer := newCommitterMock()
	// an absent config value must not stop the queue
	queue := NewQueue(store, committer, metrics.NewTestManager(), 0)

	ctx := context.Background()
	workoutLog := newQueuedLog(1)

	_, err := queue.Enqueue(ctx, workoutLog)
	require.NoError(t, err)

	require.NoError(t, queue.Sync(ctx))
	assert.Equal(t, []string{workoutLog.ID}, committer.committed())
}

func TestQueue_OnDrained(t *testing.T) {
	store := NewMemoryStore()
	committer := newCommitterMock()
	queue := NewQueue(store, committer, metrics.NewTestManager(), 3)

	ctx := context.Background()

	var drainedCount int
	unsubscribe := queue.OnDrained(func() {
		drainedCount++
	})

	// an empty pass commits nothing, nobody gets notified
	require.NoError(t, queue.Sync(ctx))
	assert.Equal(t, 0, drainedCount)

	workoutLog := newQueuedLog(1)
	_, err := queue.Enqueue(ctx, workoutLog)
	require.NoError(t, err)

	require.NoError(t, queue.Sync(ctx))
	assert.Equal(t, 1, drainedCount)

	// a pass where the only entry fails commits nothing
	failingLog := newQueuedLog(1)
	committer.failures[failingLog.ID] = 1
	_, err = queue.Enqueue(ctx, failingLog)
	require.NoError(t, err)

	require.NoError(t, queue.Sync(ctx))
	assert.Equal(t, 1, drainedCount)

	require.NoError(t, queue.Sync(ctx))
	assert.Equal(t, 2, drainedCount)

	// after unsubscribing, no more notifications
	unsubscribe()
	_, err = queue.Enqueue(ctx, newQueuedLog(1))
	require.NoError(t, err)
	require.NoError(t, queue.Sync(ctx))
	assert.Equal(t, 2, drainedCount)
}

func TestQueue_OnDrained_PartialDrainStillSignals(t *testing.T) {
	store := NewMemoryStore()
	committer := newCommitterMock()
	queue := NewQueue(store, committer, metrics.NewTestManager(), 3)

	ctx := context.Background()

	var drainedCount int
	unsubscribe := queue.OnDrained(func() {
		drainedCount++
	})
	defer unsubscribe()

	goodLog := newQueuedLog(1)
	badLog := newQueuedLog(1)
	committer.failures[badLog.ID] = 100

	_, err := queue.Enqueue(ctx, goodLog)
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, badLog)
	require.NoError(t, err)

	// new data reached the server, downstream must hear about it even
	// though one entry is still stuck in the queue
	require.NoError(t, queue.Sync(ctx))
	assert.Equal(t, []string{goodLog.ID}, committer.committed())
	assert.Equal(t, 1, drainedCount)
}

func TestQueue_SingleFlightCoalescing(t *testing.T) {
	store := NewMemoryStore()
	committer := newCommitterMock()
	committer.gate = make(chan struct{})
	committer.started = make(chan struct{})
	queue := NewQueue(store, committer, metrics.NewTestManager(), 3)

	ctx := context.Background()
	logA := newQueuedLog(1)
	_, err := queue.Enqueue(ctx, logA)
	require.NoError(t, err)

	firstPassDone := make(chan struct{})
	go func() {
		defer close(firstPassDone)
		_ = queue.Sync(ctx)
	}()

	// wait for the first pass to be mid-commit
	select {
	case <-committer.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first pass never started committing")
	}

	// a log arrives while the pass is running
	logB := newQueuedLog(1)
	_, err = queue.Enqueue(ctx, logB)
	require.NoError(t, err)

	// this Sync call returns immediately, the running pass re-runs
	require.NoError(t, queue.Sync(ctx))

	close(committer.gate)

	select {
	case <-firstPassDone:
	case <-time.After(5 * time.Second):
		t.Fatal("sync pass never finished")
	}

	// the coalesced re-run picked up B
	assert.Equal(t, []string{logA.ID, logB.ID}, committer.committed())
	entries, err := queue.Entries(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQueue_RunDrainsOnTrigger(t *testing.T) {
	store := NewMemoryStore()
	committer := newCommitterMock()
	queue := NewQueue(store, committer, metrics.NewTestManager(), 3)

	ctx, cancel := context.WithCancel(context.Background())

	drained := make(chan struct{}, 1)
	unsubscribe := queue.OnDrained(func() {
		select {
		case drained <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		queue.Run(ctx, time.Hour)
	}()

	workoutLog := newQueuedLog(1)
	_, err := queue.Enqueue(ctx, workoutLog)
	require.NoError(t, err)

	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("queue never drained")
	}
	assert.Equal(t, []string{workoutLog.ID}, committer.committed())

	cancel()
	select {
	case <-runnerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("runner never stopped")
	}
}

func TestQueue_Enqueue_InvalidLogRejected(t *testing.T) {
	store := NewMemoryStore()
	queue := NewQueue(store, newCommitterMock(), metrics.NewTestManager(), 3)

	workoutLog := newQueuedLog(1)
	workoutLog.RPE = 0

	_, err := queue.Enqueue(context.Background(), workoutLog)
	require.Error(t, err)

	entries, err := queue.Entries(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
