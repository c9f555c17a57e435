package workoutlog

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pilatesloop/backend/internal/telemetry/tracing"
	"github.com/pilatesloop/backend/internal/workoutstats"
)

type statsUpdater interface {
	OnWorkoutLogged(ctx context.Context, userID, durationMinutes, calories int) error
}

// Committer applies queued workout logs to the store. The sync queue
// retries commits, so this has to stay idempotent, which the
// client generated log IDs give us for free.
type Committer struct {
	repo  logsRepo
	stats statsUpdater
}

func NewCommitter(repo logsRepo, stats statsUpdater) *Committer {
	return &Committer{
		repo:  repo,
		stats: stats,
	}
}

func (c *Committer) CommitWorkout(ctx context.Context, workoutLog Log) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "workoutlog.committer.commit")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("log.id", workoutLog.ID))

	if workoutLog.CalorieEstimate == 0 {
		workoutLog.CalorieEstimate = workoutstats.EstimateCalories(
			workoutLog.Type, workoutLog.DurationMinutes, workoutLog.RPE, 0,
		)
	}

	addedLog, created, err := c.repo.Add(ctx, workoutLog)
	if err != nil {
		return fmt.Errorf("add log: %w", err)
	}
	span.SetAttributes(attribute.Bool("created", created))

	if !created {
		// a retried commit of an already stored log
		return nil
	}

	// the lifetime counters tolerate a missed bump, the next cold
	// stats read recomputes them anyway
	if err := c.stats.OnWorkoutLogged(ctx, addedLog.UserID, addedLog.DurationMinutes, addedLog.CalorieEstimate); err != nil {
		log.Errorf("failed to bump stats for log %s: %s", addedLog.ID, err)
	}

	return nil
}
