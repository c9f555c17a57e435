package studios

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

func (r *Repo) Add(ctx context.Context, studio Studio) (_ *Studio, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.studios.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`INSERT INTO studio
				(name, city, address, website, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id;`,
		studio.Name, studio.City, studio.Address, studio.Website, studio.CreatedAt,
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

	span.SetAttributes(attribute.Int("studio.id", id))

	studio.ID = id
	return &studio, nil
}

func (r *Repo) Update(ctx context.Context, studio *Studio) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.studios.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("studio.id", studio.ID))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE studio SET name = $1, city = $2, address = $3, website = $4 WHERE id = $5;`,
		studio.Name, studio.City, studio.Address, studio.Website, studio.ID,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrStudioNotFound
	}

	return nil
}

func (r *Repo) Get(ctx context.Context, id int) (_ *Studio, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.studios.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("studio.id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, name, city, address, website, created_at FROM studio WHERE id = $1;`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	studios, err := r.rows2studios(rows)
	if err != nil {
		return nil, err
	}

	if len(studios) != 1 {
		return nil, ErrStudioNotFound
	}

	return &studios[0], nil
}

func (r *Repo) Delete(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.studios.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("studio.id", id))

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM studio WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStudioNotFound
	}
	return nil
}

// List returns all studios, optionally filtered by city.
func (r *Repo) List(ctx context.Context, city string) (_ []Studio, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.studios.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("city", city))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, name, city, address, website, created_at
			FROM studio
			WHERE ($1::text = '' OR city = $1)
			ORDER BY name;`,
		city,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return r.rows2studios(rows)
}

func (r *Repo) rows2studios(rows pgx.Rows) ([]Studio, error) {
	var studios []Studio
	for rows.Next() {
		var s Studio
		if err := rows.Scan(&s.ID, &s.Name, &s.City, &s.Address, &s.Website, &s.CreatedAt); err != nil {
			return nil, err
		}
		studios = append(studios, s)
	}

	if studios == nil {
		studios = make([]Studio, 0)
	}

	return studios, nil
}
