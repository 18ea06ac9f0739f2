package permissions

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines permission catalog access.
type Repository interface {
	List(ctx context.Context) ([]Permission, error)
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) List(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, detail, created_at FROM permissions WHERE is_deleted = FALSE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Detail, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
