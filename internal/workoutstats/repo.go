package workoutstats

import (
	"context"
	"errors"
	"time"

	"github.com/pilatesloop/backend/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var ErrSnapshotNotFound = errors.New("stats snapshot not found")

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) GetSnapshot(ctx context.Context, userID int) (_ *Snapshot, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutstats.getsnapshot")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	rows, err := r.db.Query(
		ctx,
		`SELECT user_id, total_workouts, total_minutes, total_calories, longest_streak, updated_at
			FROM user_workout_stats
			WHERE user_id = $1;`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, ErrSnapshotNotFound
	}

	var s Snapshot
	if err := rows.Scan(
		&s.UserID, &s.TotalWorkouts, &s.TotalMinutes, &s.TotalCalories, &s.LongestStreak, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return &s, nil
}

// UpsertSnapshot stores the lifetime counters for a user. Concurrent
// writers overwrite each other, last write wins.
func (r *Repo) UpsertSnapshot(ctx context.Context, snapshot Snapshot) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutstats.upsertsnapshot")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", snapshot.UserID))

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO user_workout_stats
				(user_id, total_workouts, total_minutes, total_calories, longest_streak, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id) DO UPDATE SET
				total_workouts = EXCLUDED.total_workouts,
				total_minutes = EXCLUDED.total_minutes,
				total_calories = EXCLUDED.total_calories,
				longest_streak = EXCLUDED.longest_streak,
				updated_at = EXCLUDED.updated_at;`,
		snapshot.UserID, snapshot.TotalWorkouts, snapshot.TotalMinutes,
		snapshot.TotalCalories, snapshot.LongestStreak, snapshot.UpdatedAt,
	)
	return err
}

// AddToSnapshot bumps the cached lifetime counters after a new workout.
// When no snapshot exists yet nothing happens, the next stats read
// builds it from scratch anyway.
func (r *Repo) AddToSnapshot(ctx context.Context, userID, minutes, calories int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutstats.addtosnapshot")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	_, err = r.db.Exec(
		ctx,
		`UPDATE user_workout_stats SET
				total_workouts = total_workouts + 1,
				total_minutes = total_minutes + $2,
				total_calories = total_calories + $3,
				updated_at = NOW()
			WHERE user_id = $1;`,
		userID, minutes, calories,
	)
	return err
}

// WorkoutDates returns the distinct calendar days the user worked out on.
func (r *Repo) WorkoutDates(ctx context.Context, userID int) (_ []time.Time, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutstats.workoutdates")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	rows, err := r.db.Query(
		ctx,
		`SELECT DISTINCT workout_date::date FROM workout_log
			WHERE user_id = $1
			ORDER BY 1;`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}

	if dates == nil {
		dates = make([]time.Time, 0)
	}

	return dates, nil
}

// WindowAggregates sums up the workouts within [from, to].
func (r *Repo) WindowAggregates(ctx context.Context, userID int, from, to time.Time) (_ WindowStats, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutstats.window")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))
	span.SetAttributes(attribute.String("from", from.String()))
	span.SetAttributes(attribute.String("to", to.String()))

	rows, err := r.db.Query(
		ctx,
		`SELECT COUNT(*), COALESCE(SUM(duration_minutes), 0), COALESCE(SUM(calorie_estimate), 0)
			FROM workout_log
			WHERE user_id = $1 AND workout_date >= $2 AND workout_date <= $3;`,
		userID, from, to,
	)
	if err != nil {
		return WindowStats{}, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return WindowStats{}, err
	}

	if !rows.Next() {
		return WindowStats{}, errors.New("unexpected error, failed to get window aggregates")
	}

	var w WindowStats
	if err := rows.Scan(&w.Workouts, &w.Minutes, &w.Calories); err != nil {
		return WindowStats{}, err
	}

	return w, nil
}

func (r *Repo) AvgRPE(ctx context.Context, userID int) (_ float64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutstats.avgrpe")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	rows, err := r.db.Query(
		ctx,
		`SELECT COALESCE(AVG(rpe), 0) FROM workout_log WHERE user_id = $1;`,
		userID,
	)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return 0, err
	}

	if !rows.Next() {
		return 0, errors.New("unexpected error, failed to get avg rpe")
	}

	var avg float64
	if err := rows.Scan(&avg); err != nil {
		return 0, err
	}

	return avg, nil
}

// LifetimeAggregates recomputes the lifetime counters from all the
// stored workout logs. This is the expensive cold path query.
func (r *Repo) LifetimeAggregates(ctx context.Context, userID int) (workouts, minutes, calories int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutstats.lifetime")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	rows, err := r.db.Query(
		ctx,
		`SELECT COUNT(*), COALESCE(SUM(duration_minutes), 0), COALESCE(SUM(calorie_estimate), 0)
			FROM workout_log
			WHERE user_id = $1;`,
		userID,
	)
	if err != nil {
		return 0, 0, 0, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return 0, 0, 0, err
	}

	if !rows.Next() {
		return 0, 0, 0, errors.New("unexpected error, failed to get lifetime aggregates")
	}

	if err := rows.Scan(&workouts, &minutes, &calories); err != nil {
		return 0, 0, 0, err
	}

	return workouts, minutes, calories, nil
}

// FocusAreaCounts tallies how often each focus area tag appears across
// all the user's workout logs.
func (r *Repo) FocusAreaCounts(ctx context.Context, userID int) (_ map[string]int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutstats.focusareas")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	rows, err := r.db.Query(
		ctx,
		`SELECT unnest(focus_areas) AS area, COUNT(*)
			FROM workout_log
			WHERE user_id = $1
			GROUP BY area;`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for rows.Next() {
		var area string
		var count int
		if err := rows.Scan(&area, &count); err != nil {
			return nil, err
		}
		counts[area] = count
	}

	return counts, nil
}

// TypeBreakdown counts the user's workouts per workout type.
func (r *Repo) TypeBreakdown(ctx context.Context, userID int) (_ map[string]int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutstats.typebreakdown")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	rows, err := r.db.Query(
		ctx,
		`SELECT workout_type, COUNT(*)
			FROM workout_log
			WHERE user_id = $1
			GROUP BY workout_type;`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	breakdown := make(map[string]int)
	for rows.Next() {
		var workoutType string
		var count int
		if err := rows.Scan(&workoutType, &count); err != nil {
			return nil, err
		}
		breakdown[workoutType] = count
	}

	return breakdown, nil
}
