package workoutstats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilatesloop/backend/internal/telemetry/metrics"
	"github.com/pilatesloop/backend/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

type statsRepo interface {
	GetSnapshot(ctx context.Context, userID int) (*Snapshot, error)
	UpsertSnapshot(ctx context.Context, snapshot Snapshot) error
	AddToSnapshot(ctx context.Context, userID, minutes, calories int) error
	WorkoutDates(ctx context.Context, userID int) ([]time.Time, error)
	WindowAggregates(ctx context.Context, userID int, from, to time.Time) (WindowStats, error)
	AvgRPE(ctx context.Context, userID int) (float64, error)
	LifetimeAggregates(ctx context.Context, userID int) (workouts, minutes, calories int, err error)
	FocusAreaCounts(ctx context.Context, userID int) (map[string]int, error)
	TypeBreakdown(ctx context.Context, userID int) (map[string]int, error)
}

// Aggregator assembles the user stats. Lifetime counters come from the
// cached snapshot when one exists (warm path) and are recomputed from
// all logs otherwise (cold path). Streaks, rolling windows, weekly
// progress and avg RPE are always computed fresh.
type Aggregator struct {
	repo    statsRepo
	metrics *metrics.Manager
}

func NewAggregator(repo statsRepo, metricsManager *metrics.Manager) *Aggregator {
	return &Aggregator{
		repo:    repo,
		metrics: metricsManager,
	}
}

func (a *Aggregator) GetStats(ctx context.Context, userID int, now time.Time) (_ *Stats, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "workoutstats.aggregator.getstats")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	dates, err := a.repo.WorkoutDates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get workout dates: %w", err)
	}
	streak := CalculateStreak(dates, now)

	snapshot, err := a.repo.GetSnapshot(ctx, userID)
	switch {
	case errors.Is(err, ErrSnapshotNotFound):
		snapshot, err = a.rebuildSnapshot(ctx, userID, streak.LongestStreak, now)
		if err != nil {
			return nil, fmt.Errorf("rebuild snapshot: %w", err)
		}
		a.metrics.CounterStatsColdPath.Inc()
		span.SetAttributes(attribute.Bool("cold_path", true))
	case err != nil:
		return nil, fmt.Errorf("get snapshot: %w", err)
	default:
		a.metrics.CounterStatsWarmPath.Inc()
		if streak.LongestStreak > snapshot.LongestStreak {
			snapshot.LongestStreak = streak.LongestStreak
			snapshot.UpdatedAt = now
			if err := a.repo.UpsertSnapshot(ctx, *snapshot); err != nil {
				return nil, fmt.Errorf("update snapshot longest streak: %w", err)
			}
		}
	}

	today := toDay(now)
	last7, err := a.repo.WindowAggregates(ctx, userID, today.AddDate(0, 0, -6), now)
	if err != nil {
		return nil, fmt.Errorf("get 7 day window: %w", err)
	}
	last30, err := a.repo.WindowAggregates(ctx, userID, today.AddDate(0, 0, -29), now)
	if err != nil {
		return nil, fmt.Errorf("get 30 day window: %w", err)
	}

	avgRPE, err := a.repo.AvgRPE(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get avg rpe: %w", err)
	}

	focusAreaCounts, err := a.repo.FocusAreaCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get focus area counts: %w", err)
	}
	typeBreakdown, err := a.repo.TypeBreakdown(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get type breakdown: %w", err)
	}

	return &Stats{
		UserID:          userID,
		TotalWorkouts:   snapshot.TotalWorkouts,
		TotalMinutes:    snapshot.TotalMinutes,
		TotalCalories:   snapshot.TotalCalories,
		CurrentStreak:   streak.CurrentStreak,
		LongestStreak:   snapshot.LongestStreak,
		LastWorkoutDate: streak.LastWorkoutDate,
		StreakStartDate: streak.StreakStartDate,
		AvgRPE:          avgRPE,
		WeeklyMinutes:   last7.Minutes,
		MonthlyMinutes:  last30.Minutes,
		Last7Days:       last7,
		Last30Days:      last30,
		WeeklyProgress:  weeklyProgress(dates, now),
		FocusAreaCounts: focusAreaCounts,
		TypeBreakdown:   typeBreakdown,
	}, nil
}

// rebuildSnapshot is the cold path: recompute the lifetime counters from
// all stored logs and persist them. A failure to persist fails the whole
// stats read, serving stats that silently will not get cached would just
// hide the problem.
func (a *Aggregator) rebuildSnapshot(ctx context.Context, userID, longestStreak int, now time.Time) (*Snapshot, error) {
	workouts, minutes, calories, err := a.repo.LifetimeAggregates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get lifetime aggregates: %w", err)
	}

	snapshot := Snapshot{
		UserID:        userID,
		TotalWorkouts: workouts,
		TotalMinutes:  minutes,
		TotalCalories: calories,
		LongestStreak: longestStreak,
		UpdatedAt:     now,
	}

	if err := a.repo.UpsertSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("upsert snapshot: %w", err)
	}

	return &snapshot, nil
}

func (a *Aggregator) WeeklyProgress(ctx context.Context, userID int, now time.Time) (_ [7]bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "workoutstats.aggregator.weeklyprogress")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	dates, err := a.repo.WorkoutDates(ctx, userID)
	if err != nil {
		return [7]bool{}, fmt.Errorf("get workout dates: %w", err)
	}

	return weeklyProgress(dates, now), nil
}

func (a *Aggregator) GetStreak(ctx context.Context, userID int, now time.Time) (_ StreakResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "workoutstats.aggregator.getstreak")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	dates, err := a.repo.WorkoutDates(ctx, userID)
	if err != nil {
		return StreakResult{}, fmt.Errorf("get workout dates: %w", err)
	}

	return CalculateStreak(dates, now), nil
}

// OnWorkoutLogged bumps the cached lifetime counters for the user.
func (a *Aggregator) OnWorkoutLogged(ctx context.Context, userID, durationMinutes, calories int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "workoutstats.aggregator.onworkoutlogged")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	return a.repo.AddToSnapshot(ctx, userID, durationMinutes, calories)
}

// weeklyProgress marks which days of the current week, Monday first,
// have at least one workout.
func weeklyProgress(workoutDates []time.Time, now time.Time) [7]bool {
	daysSet := make(map[time.Time]bool, len(workoutDates))
	for _, d := range workoutDates {
		daysSet[toDay(d)] = true
	}

	// Go weeks start on Sunday, shift so that Monday gets index 0
	mondayOffset := (int(now.Weekday()) + 6) % 7
	monday := toDay(now).AddDate(0, 0, -mondayOffset)

	var progress [7]bool
	for i := 0; i < 7; i++ {
		progress[i] = daysSet[monday.AddDate(0, 0, i)]
	}
	return progress
}
