package cbes

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cbes-platform/cbes-api/internal/lifecycle"
)

// Repository defines CBE data access.
type Repository interface {
	ListActive(ctx context.Context) ([]CBE, error)
	ListBin(ctx context.Context) ([]CBE, error)
	Get(ctx context.Context, id int64) (CBE, error)
	Insert(ctx context.Context, in CreateInput, now time.Time) (CBE, error)
	Update(ctx context.Context, in UpdateInput, now, expectedUpdatedAt time.Time) (CBE, error)
	Transition(ctx context.Context, id int64, from, to lifecycle.Flags, actorID int64, now time.Time) (CBE, error)
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const cbeColumns = `id, thai_name, eng_name, short_name, detail, created_by, created_at, updated_by, updated_at, is_deleted, is_purged`

func (r *pgRepository) ListActive(ctx context.Context) ([]CBE, error) {
	return r.list(ctx, `SELECT `+cbeColumns+` FROM cbes WHERE is_deleted = FALSE ORDER BY id`)
}

func (r *pgRepository) ListBin(ctx context.Context) ([]CBE, error) {
	return r.list(ctx, `SELECT `+cbeColumns+` FROM cbes WHERE is_deleted = TRUE AND is_purged = FALSE ORDER BY id`)
}

func (r *pgRepository) list(ctx context.Context, query string) ([]CBE, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []CBE
	for rows.Next() {
		c, err := scanCBE(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *pgRepository) Get(ctx context.Context, id int64) (CBE, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+cbeColumns+` FROM cbes WHERE id = $1`, id)
	c, err := scanCBE(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CBE{}, ErrCBENotFound
		}
		return CBE{}, err
	}
	return c, nil
}

func (r *pgRepository) Insert(ctx context.Context, in CreateInput, now time.Time) (CBE, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO cbes (thai_name, eng_name, short_name, detail, created_by, created_at, updated_by, updated_at, is_deleted, is_purged)
		VALUES ($1, $2, $3, $4, $5, $6, $5, $6, FALSE, FALSE)
		RETURNING `+cbeColumns,
		in.ThaiName, in.EngName, in.ShortName, in.Detail, in.ActorID, now)
	return scanCBE(row)
}

// Update replaces provided fields, guarded by the updated_at the caller last
// read so a stale read loses instead of silently overwriting.
func (r *pgRepository) Update(ctx context.Context, in UpdateInput, now, expectedUpdatedAt time.Time) (CBE, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE cbes
		SET thai_name = COALESCE($1, thai_name),
		    eng_name = COALESCE($2, eng_name),
		    short_name = COALESCE($3, short_name),
		    detail = COALESCE($4, detail),
		    updated_by = $5, updated_at = $6
		WHERE id = $7 AND is_deleted = FALSE AND updated_at = $8
		RETURNING `+cbeColumns,
		in.ThaiName, in.EngName, in.ShortName, in.Detail, in.ActorID, now, in.ID, expectedUpdatedAt)
	c, err := scanCBE(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CBE{}, ErrStaleCBE
		}
		return CBE{}, err
	}
	return c, nil
}

// Transition flips lifecycle flags with a compare-and-set on the current
// flags, mirroring the role aggregate.
func (r *pgRepository) Transition(ctx context.Context, id int64, from, to lifecycle.Flags, actorID int64, now time.Time) (CBE, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE cbes
		SET is_deleted = $1, is_purged = $2, updated_by = $3, updated_at = $4
		WHERE id = $5 AND is_deleted = $6 AND is_purged = $7
		RETURNING `+cbeColumns,
		to.Deleted, to.Purged, actorID, now, id, from.Deleted, from.Purged)
	c, err := scanCBE(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CBE{}, ErrStaleCBE
		}
		return CBE{}, err
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCBE(row rowScanner) (CBE, error) {
	var c CBE
	err := row.Scan(&c.ID, &c.ThaiName, &c.EngName, &c.ShortName, &c.Detail,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedBy, &c.UpdatedAt, &c.Deleted, &c.Purged)
	return c, err
}
