package community

import (
	"context"
	"errors"

	"github.com/pilatesloop/backend/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, post Post) (_ *Post, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.community.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`INSERT INTO community_post
				(user_id, workout_log_id, content, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id;`,
		post.UserID, post.WorkoutLogID, post.Content, post.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, errors.New("unexpected error [no rows next]")
	}

	var id int
	if err := rows.Scan(&id); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("post.id", id))

	post.ID = id
	return &post, nil
}

func (r *Repo) Delete(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.community.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("post.id", id))

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM community_post WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

// List returns the requested feed page, newest first.
func (r *Repo) List(ctx context.Context, page, size int) (_ []Post, total int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.community.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("page", page))
	span.SetAttributes(attribute.Int("size", size))

	if page < 1 {
		return nil, -1, errors.New("page must be greater than 0")
	}
	if size < 1 {
		return nil, -1, errors.New("size must be greater than 0")
	}

	total, err = r.PostsCount(ctx)
	if err != nil {
		return nil, -1, err
	}

	limit := size
	offset := (page - 1) * size
	if total <= limit {
		limit = total
		offset = 0
	}
	if total-offset < limit {
		offset = total - limit
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT id, user_id, workout_log_id, content, created_at
			FROM community_post
			ORDER BY created_at DESC
			LIMIT $1
			OFFSET $2;`,
		limit, offset,
	)
	if err != nil {
		return nil, -1, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, -1, err
	}

	posts, err := r.rows2posts(rows)
	if err != nil {
		return nil, -1, err
	}
	return posts, total, nil
}

func (r *Repo) PostsCount(ctx context.Context) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.community.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(ctx, `SELECT COUNT(*) FROM community_post;`)
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

	return -1, errors.New("unexpected error, failed to get posts count")
}

func (r *Repo) rows2posts(rows pgx.Rows) ([]Post, error) {
	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.UserID, &p.WorkoutLogID, &p.Content, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}

	if posts == nil {
		posts = make([]Post, 0)
	}

	return posts, nil
}
