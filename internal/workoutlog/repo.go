package workoutlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilatesloop/backend/internal/telemetry/tracing"
	"github.com/pilatesloop/backend/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

type LogParams struct {
	UserID      int
	WorkoutType string
	StudioID    *int
	From        *time.Time
	To          *time.Time
	SharedOnly  bool
}

type ListParams struct {
	LogParams
	Page int
	Size int
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// Add stores a new workout log. Since log IDs are generated on the client,
// a retried upload of an already stored log is not an error: the stored
// log is returned instead, with created reported as false.
func (r *Repo) Add(ctx context.Context, workoutLog Log) (_ *Log, created bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutlog.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("log.id", workoutLog.ID))

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO workout_log
				(id, user_id, workout_date, duration_minutes, workout_type, rpe, focus_areas,
				calorie_estimate, studio_id, template_id, image_path, is_shared, shared_post_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);`,
		workoutLog.ID, workoutLog.UserID, workoutLog.WorkoutDate, workoutLog.DurationMinutes,
		workoutLog.Type, workoutLog.RPE, workoutLog.FocusAreas, workoutLog.CalorieEstimate,
		workoutLog.StudioID, workoutLog.TemplateID, workoutLog.ImagePath,
		workoutLog.IsShared, workoutLog.SharedPostID, workoutLog.CreatedAt,
	)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			existing, getErr := r.Get(ctx, workoutLog.ID)
			if getErr != nil {
				return nil, false, fmt.Errorf("get existing log: %w", getErr)
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	return &workoutLog, true, nil
}

func (r *Repo) Get(ctx context.Context, id string) (_ *Log, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutlog.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("log.id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT
				id, user_id, workout_date, duration_minutes, workout_type, rpe, focus_areas,
				calorie_estimate, studio_id, template_id, image_path, is_shared, shared_post_id, created_at
			FROM workout_log
			WHERE id = $1;`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	logs, err := r.rows2logs(rows)
	if err != nil {
		return nil, err
	}

	if len(logs) != 1 {
		return nil, ErrLogNotFound
	}

	return &logs[0], nil
}

func (r *Repo) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutlog.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("log.id", id))

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM workout_log WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLogNotFound
	}
	return nil
}

// Share marks the log as shared and binds it to a community post.
// Sharing an already shared log is a conflict, not an overwrite.
func (r *Repo) Share(ctx context.Context, id string, postID int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutlog.share")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("log.id", id))
	span.SetAttributes(attribute.Int("post.id", postID))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE workout_log SET is_shared = TRUE, shared_post_id = $2 WHERE id = $1 AND is_shared = FALSE;`,
		id, postID,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyShared
	}

	return nil
}

func (r *Repo) Unshare(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutlog.unshare")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("log.id", id))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE workout_log SET is_shared = FALSE, shared_post_id = NULL WHERE id = $1 AND is_shared = TRUE;`,
		id,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrNotShared
	}

	return nil
}

// ListAll returns all workout logs matching the given params, newest first.
func (r *Repo) ListAll(ctx context.Context, params LogParams) (_ []Log, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutlog.listall")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", params.UserID))
	span.SetAttributes(attribute.String("workout_type", params.WorkoutType))
	if params.From != nil {
		span.SetAttributes(attribute.String("from", params.From.String()))
	}
	if params.To != nil {
		span.SetAttributes(attribute.String("to", params.To.String()))
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT
				id, user_id, workout_date, duration_minutes, workout_type, rpe, focus_areas,
				calorie_estimate, studio_id, template_id, image_path, is_shared, shared_post_id, created_at
			FROM workout_log
				WHERE user_id = $1
				AND ($2::text = '' OR workout_type = $2)
				AND ($3::int IS NULL OR studio_id = $3)
				AND ($4::timestamp IS NULL OR workout_date >= $4)
				AND ($5::timestamp IS NULL OR workout_date <= $5)
				AND ($6::boolean IS FALSE OR is_shared IS TRUE)
			ORDER BY workout_date DESC;`,
		params.UserID, params.WorkoutType, params.StudioID,
		params.From, params.To, params.SharedOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	logs, err := r.rows2logs(rows)
	if err != nil {
		return nil, fmt.Errorf("rows2logs: %w", err)
	}
	return logs, nil
}

// List is like ListAll, but returns the specific PAGE, i.e. is used for pagination.
func (r *Repo) List(ctx context.Context, params ListParams) (_ []Log, total int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutlog.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("page", params.Page))
	span.SetAttributes(attribute.Int("size", params.Size))
	span.SetAttributes(attribute.Int("user.id", params.UserID))

	if params.Page < 1 {
		return nil, -1, errors.New("page must be greater than 0")
	}
	if params.Size < 1 {
		return nil, -1, errors.New("size must be greater than 0")
	}

	limit := params.Size
	offset := (params.Page - 1) * params.Size
	countAll, err := r.LogsCount(ctx, params.LogParams)
	if err != nil {
		return nil, -1, err
	}

	if countAll <= limit {
		limit = countAll
		offset = 0
	}

	if countAll-offset < limit {
		offset = countAll - limit
	}

	span.SetAttributes(attribute.Int("count_all", countAll))
	span.SetAttributes(attribute.Int("limit", limit))
	span.SetAttributes(attribute.Int("offset", offset))

	rows, err := r.db.Query(
		ctx,
		`SELECT
				id, user_id, workout_date, duration_minutes, workout_type, rpe, focus_areas,
				calorie_estimate, studio_id, template_id, image_path, is_shared, shared_post_id, created_at
			FROM workout_log
				WHERE user_id = $1
				AND ($2::text = '' OR workout_type = $2)
				AND ($5::boolean IS FALSE OR is_shared IS TRUE)
			ORDER BY workout_date DESC
			LIMIT $3
			OFFSET $4;`,
		params.UserID, params.WorkoutType,
		limit, offset,
		params.SharedOnly,
	)
	if err != nil {
		return nil, -1, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, -1, err
	}

	logs, err := r.rows2logs(rows)
	if err != nil {
		return nil, -1, err
	}
	return logs, countAll, nil
}

func (r *Repo) LogsCount(ctx context.Context, params LogParams) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutlog.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(ctx, `
		SELECT COUNT(*) FROM workout_log
			WHERE user_id = $1
			AND ($2::text = '' OR workout_type = $2)
			AND ($3::int IS NULL OR studio_id = $3)
			AND ($4::timestamp IS NULL OR workout_date >= $4)
			AND ($5::timestamp IS NULL OR workout_date <= $5)
			AND ($6::boolean IS FALSE OR is_shared IS TRUE);
	`,
		params.UserID, params.WorkoutType, params.StudioID,
		params.From, params.To, params.SharedOnly,
	)
	if err != nil {
		return -1, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return -1, err
	}

	if rows.Next() {
		var count int
		if err := rows.Scan(&count); err == nil {
			return count, nil
		}
	}

	return -1, errors.New("unexpected error, failed to get workout logs count")
}

func (r *Repo) rows2logs(rows pgx.Rows) ([]Log, error) {
	var logs []Log
	for rows.Next() {
		var l Log
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.WorkoutDate, &l.DurationMinutes, &l.Type, &l.RPE, &l.FocusAreas,
			&l.CalorieEstimate, &l.StudioID, &l.TemplateID, &l.ImagePath,
			&l.IsShared, &l.SharedPostID, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}

	if logs == nil {
		logs = make([]Log, 0)
	}

	return logs, nil
}
