package syncqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pilatesloop/backend/internal/telemetry/metrics"
	"github.com/pilatesloop/backend/internal/telemetry/tracing"
	"github.com/pilatesloop/backend/internal/workoutlog"
)

// logCommitter applies a queued workout log to the server side store.
// Committing the same log twice must be a no-op, the queue retries.
type logCommitter interface {
	CommitWorkout(ctx context.Context, workoutLog workoutlog.Log) error
}

// defaultWarnAfterAttempts is used when the configured threshold is
// missing or nonsensical.
const defaultWarnAfterAttempts = 5

// Queue holds workout logs recorded while the client was offline and
// drains them to the main store. At most one sync pass runs at a time,
// a trigger arriving mid-pass coalesces into a single re-run. A failing
// entry stays queued and is retried on every pass, abandoning it is the
// only way it ever leaves the queue uncommitted.
type Queue struct {
	store             Store
	committer         logCommitter
	metrics           *metrics.Manager
	warnAfterAttempts int

	triggers chan Trigger

	mu               sync.Mutex
	syncing          bool
	runAgain         bool
	subscribers      map[int]func()
	nextSubscriberID int
}

func NewQueue(
	store Store,
	committer logCommitter,
	metricsManager *metrics.Manager,
	warnAfterAttempts int,
) *Queue {
	if warnAfterAttempts <= 0 {
		warnAfterAttempts = defaultWarnAfterAttempts
	}
	return &Queue{
		store:             store,
		committer:         committer,
		metrics:           metricsManager,
		warnAfterAttempts: warnAfterAttempts,
		triggers:          make(chan Trigger, 1),
		subscribers:       make(map[int]func()),
	}
}

// Enqueue adds a workout log to the queue and kicks off a sync pass.
// Re-enqueueing an already queued log changes nothing, the entry ID is
// the client generated log ID.
func (q *Queue) Enqueue(ctx context.Context, workoutLog workoutlog.Log) (_ *Entry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "syncqueue.enqueue")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("log.id", workoutLog.ID))

	if err := workoutLog.Validate(time.Now()); err != nil {
		return nil, fmt.Errorf("validate log: %w", err)
	}

	entry := Entry{
		ID:         workoutLog.ID,
		UserID:     workoutLog.UserID,
		Log:        workoutLog,
		Status:     StatusPending,
		EnqueuedAt: time.Now(),
	}

	if err := q.store.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append entry: %w", err)
	}

	q.Notify(TriggerEnqueue)
	return &entry, nil
}

// Notify requests a sync pass. It never blocks, pending triggers
// coalesce into one.
func (q *Queue) Notify(trigger Trigger) {
	select {
	case q.triggers <- trigger:
	default:
	}
}

// Run drains the queue whenever a trigger arrives, plus periodically as
// a safety net. It blocks until ctx is done.
func (q *Queue) Run(ctx context.Context, syncInterval time.Duration) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debugf("sync queue runner stopping: %s", ctx.Err())
			return
		case trigger := <-q.triggers:
			log.Tracef("sync queue pass triggered: %s", trigger)
			if err := q.Sync(ctx); err != nil {
				log.Errorf("sync queue pass [%s]: %s", trigger, err)
			}
		case <-ticker.C:
			if err := q.Sync(ctx); err != nil {
				log.Errorf("sync queue periodic pass: %s", err)
			}
		}
	}
}

// Sync runs a drain pass. If a pass is already running, the call
// returns immediately and the running pass re-runs once more when done,
// so no trigger is ever lost.
func (q *Queue) Sync(ctx context.Context) (err error) {
	q.mu.Lock()
	if q.syncing {
		q.runAgain = true
		q.mu.Unlock()
		return nil
	}
	q.syncing = true
	q.mu.Unlock()

	for {
		err = q.pass(ctx)

		q.mu.Lock()
		if q.runAgain && err == nil && ctx.Err() == nil {
			q.runAgain = false
			q.mu.Unlock()
			continue
		}
		q.syncing = false
		q.runAgain = false
		q.mu.Unlock()
		return err
	}
}

func (q *Queue) pass(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "syncqueue.pass")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	passStart := time.Now()
	defer func() {
		q.metrics.HistSyncPassDuration.Observe(time.Since(passStart).Seconds())
	}()

	users, err := q.store.Users(ctx)
	if err != nil {
		return fmt.Errorf("get queue users: %w", err)
	}

	committedTotal := 0
	for _, userID := range users {
		committed, err := q.drainUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("drain user %d: %w", userID, err)
		}
		committedTotal += committed
	}

	// downstream read models went stale the moment something committed
	if committedTotal > 0 {
		q.notifyDrained()
	}
	return nil
}

// drainUser commits the user's entries in FIFO order. A failing entry
// does not block the entries behind it and is retried on the next
// pass, it never gets dropped on the queue's own initiative.
func (q *Queue) drainUser(ctx context.Context, userID int) (committed int, err error) {
	entries, err := q.store.Entries(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get entries: %w", err)
	}

	for _, entry := range entries {
		entry.Status = StatusInFlight
		if err := q.store.Update(ctx, entry); err != nil {
			return committed, fmt.Errorf("mark entry %s in-flight: %w", entry.ID, err)
		}

		if commitErr := q.committer.CommitWorkout(ctx, entry.Log); commitErr != nil {
			entry.Attempts++
			entry.Status = StatusFailed
			entry.LastError = commitErr.Error()
			if err := q.store.Update(ctx, entry); err != nil {
				return committed, fmt.Errorf("mark entry %s failed: %w", entry.ID, err)
			}
			q.metrics.CounterFailedSyncEntries.Inc()
			if entry.Attempts >= q.warnAfterAttempts {
				log.Warnf("sync queue, entry %s still failing after %d attempts: %s", entry.ID, entry.Attempts, commitErr)
			} else {
				log.Errorf("sync queue, commit entry %s (attempt %d): %s", entry.ID, entry.Attempts, commitErr)
			}
			continue
		}

		if err := q.store.Remove(ctx, userID, entry.ID); err != nil {
			return committed, fmt.Errorf("remove committed entry %s: %w", entry.ID, err)
		}
		committed++
		q.metrics.CounterSyncedEntries.Inc()
		log.Debugf("sync queue, entry %s committed", entry.ID)
	}

	return committed, nil
}

// Abandon drops an entry from the queue without committing it. This is
// the only way an entry ever gets lost.
func (q *Queue) Abandon(ctx context.Context, userID int, entryID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "syncqueue.abandon")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("entry.id", entryID))

	return q.store.Remove(ctx, userID, entryID)
}

func (q *Queue) Entries(ctx context.Context, userID int) ([]Entry, error) {
	return q.store.Entries(ctx, userID)
}

// OnDrained subscribes to sync progress notifications, fired after
// every pass that commits at least one entry. The returned func
// unsubscribes, callers must invoke it when done listening.
func (q *Queue) OnDrained(fn func()) (unsubscribe func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.nextSubscriberID
	q.nextSubscriberID++
	q.subscribers[id] = fn

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.subscribers, id)
	}
}

func (q *Queue) notifyDrained() {
	q.mu.Lock()
	subscribers := make([]func(), 0, len(q.subscribers))
	for _, fn := range q.subscribers {
		subscribers = append(subscribers, fn)
	}
	q.mu.Unlock()

	for _, fn := range subscribers {
		fn()
	}
}
