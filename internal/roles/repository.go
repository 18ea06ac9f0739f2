package roles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/cbes-platform/cbes-api/internal/lifecycle"
	"github.com/cbes-platform/cbes-api/internal/platform/db"
)

// Repository defines role aggregate data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	ListActive(ctx context.Context) ([]Role, error)
	ListBin(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetExpanded(ctx context.Context, id int64) (RoleExpanded, error)

	ListPermissionAssignments(ctx context.Context, roleID int64) ([]PermissionAssignment, error)
	ListUserAssignments(ctx context.Context, roleID int64) ([]UserAssignment, error)

	TransitionRole(ctx context.Context, roleID int64, from, to lifecycle.Flags, actorID int64, now time.Time) (Role, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	InsertRole(ctx context.Context, name string, actorID int64, now time.Time) (Role, error)
	StampRole(ctx context.Context, roleID int64, name *string, actorID int64, now, expectedUpdatedAt time.Time) error

	InsertPermissionAssignment(ctx context.Context, roleID int64, a PermissionAssignment) error
	UpdatePermissionAssignment(ctx context.Context, a PermissionAssignment) error

	InsertUserAssignment(ctx context.Context, roleID int64, a UserAssignment) error
	UpdateUserAssignment(ctx context.Context, a UserAssignment) error
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

type pgTxRepository struct {
	tx pgx.Tx
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// WithTx executes fn inside a single transaction so no partial aggregate
// state is observable by other readers mid-call.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const roleColumns = `id, name, created_by, created_at, updated_by, updated_at, is_deleted, is_purged`

// ListActive returns roles outside the bin in insertion order.
func (r *pgRepository) ListActive(ctx context.Context) ([]Role, error) {
	return r.listRoles(ctx, `SELECT `+roleColumns+` FROM roles WHERE is_deleted = FALSE ORDER BY id`)
}

// ListBin returns soft-deleted roles that were not purged yet.
func (r *pgRepository) ListBin(ctx context.Context) ([]Role, error) {
	return r.listRoles(ctx, `SELECT `+roleColumns+` FROM roles WHERE is_deleted = TRUE AND is_purged = FALSE ORDER BY id`)
}

func (r *pgRepository) listRoles(ctx context.Context, query string) ([]Role, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole fetches a role in any lifecycle state.
func (r *pgRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// GetExpanded loads the full aggregate for an active role: the role row plus
// its non-deleted permission and user assignments. Both assignment sets are
// fetched concurrently; reads take no write lock.
func (r *pgRepository) GetExpanded(ctx context.Context, id int64) (RoleExpanded, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1 AND is_deleted = FALSE`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleExpanded{}, ErrRoleNotFound
		}
		return RoleExpanded{}, err
	}

	expanded := RoleExpanded{Role: role}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		perms, err := r.queryPermissionAssignments(gctx, id, true)
		if err != nil {
			return err
		}
		expanded.Permissions = perms
		return nil
	})
	g.Go(func() error {
		users, err := r.queryUserAssignments(gctx, id, true)
		if err != nil {
			return err
		}
		expanded.Users = users
		return nil
	})
	if err := g.Wait(); err != nil {
		return RoleExpanded{}, err
	}
	return expanded, nil
}

// ListPermissionAssignments returns every assignment row for the role,
// soft-deleted ones included, for reconciler matching.
func (r *pgRepository) ListPermissionAssignments(ctx context.Context, roleID int64) ([]PermissionAssignment, error) {
	return r.queryPermissionAssignments(ctx, roleID, false)
}

func (r *pgRepository) queryPermissionAssignments(ctx context.Context, roleID int64, activeOnly bool) ([]PermissionAssignment, error) {
	query := `
		SELECT rp.id, rp.role_id, rp.permission_id, p.name, rp.is_checked, rp.is_deleted,
		       rp.created_by, rp.created_at, rp.updated_by, rp.updated_at
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1`
	if activeOnly {
		query += ` AND rp.is_deleted = FALSE`
	}
	query += ` ORDER BY rp.permission_id`

	rows, err := r.pool.Query(ctx, query, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []PermissionAssignment
	for rows.Next() {
		var a PermissionAssignment
		if err := rows.Scan(&a.ID, &a.RoleID, &a.PermissionID, &a.PermissionName, &a.Checked, &a.Deleted,
			&a.CreatedBy, &a.CreatedAt, &a.UpdatedBy, &a.UpdatedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// ListUserAssignments returns every user assignment row for the role,
// soft-deleted ones included, for reconciler matching.
func (r *pgRepository) ListUserAssignments(ctx context.Context, roleID int64) ([]UserAssignment, error) {
	return r.queryUserAssignments(ctx, roleID, false)
}

func (r *pgRepository) queryUserAssignments(ctx context.Context, roleID int64, activeOnly bool) ([]UserAssignment, error) {
	query := `
		SELECT ru.id, ru.role_id, ru.user_id, u.fullname, u.username, ru.is_deleted,
		       ru.created_by, ru.created_at, ru.updated_by, ru.updated_at
		FROM role_users ru
		JOIN users u ON u.id = ru.user_id
		WHERE ru.role_id = $1`
	if activeOnly {
		query += ` AND ru.is_deleted = FALSE`
	}
	query += ` ORDER BY ru.user_id`

	rows, err := r.pool.Query(ctx, query, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []UserAssignment
	for rows.Next() {
		var a UserAssignment
		if err := rows.Scan(&a.ID, &a.RoleID, &a.UserID, &a.UserFullname, &a.UserUsername, &a.Deleted,
			&a.CreatedBy, &a.CreatedAt, &a.UpdatedBy, &a.UpdatedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// TransitionRole flips lifecycle flags with a compare-and-set on the current
// flags, so exactly one of two racing transitions wins. Zero affected rows
// surface as ErrStaleRole; the service distinguishes absent from raced.
func (r *pgRepository) TransitionRole(ctx context.Context, roleID int64, from, to lifecycle.Flags, actorID int64, now time.Time) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET is_deleted = $1, is_purged = $2, updated_by = $3, updated_at = $4
		WHERE id = $5 AND is_deleted = $6 AND is_purged = $7
		RETURNING `+roleColumns,
		to.Deleted, to.Purged, actorID, now, roleID, from.Deleted, from.Purged)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrStaleRole
		}
		return Role{}, err
	}
	return role, nil
}

// InsertRole persists the role row first so assignment rows can reference
// its generated identity.
func (t *pgTxRepository) InsertRole(ctx context.Context, name string, actorID int64, now time.Time) (Role, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO roles (name, created_by, created_at, updated_by, updated_at, is_deleted, is_purged)
		VALUES ($1, $2, $3, $2, $3, FALSE, FALSE)
		RETURNING `+roleColumns,
		name, actorID, now)
	return scanRole(row)
}

// StampRole updates the role's name (when provided) and audit stamp, guarded
// by the updated_at the caller last read. A stale read loses the race and
// reports ErrStaleRole instead of silently overwriting.
func (t *pgTxRepository) StampRole(ctx context.Context, roleID int64, name *string, actorID int64, now, expectedUpdatedAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE roles
		SET name = COALESCE($1, name), updated_by = $2, updated_at = $3
		WHERE id = $4 AND is_deleted = FALSE AND updated_at = $5`,
		name, actorID, now, roleID, expectedUpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleRole
	}
	return nil
}

func (t *pgTxRepository) InsertPermissionAssignment(ctx context.Context, roleID int64, a PermissionAssignment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, is_checked, is_deleted, created_by, created_at, updated_by, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $5, $6, $7)`,
		roleID, a.PermissionID, a.Checked, a.CreatedBy, a.CreatedAt, a.UpdatedBy, a.UpdatedAt)
	return mapUniqueViolation(err, "uq_role_permissions")
}

func (t *pgTxRepository) UpdatePermissionAssignment(ctx context.Context, a PermissionAssignment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE role_permissions
		SET is_checked = $1, updated_by = $2, updated_at = $3
		WHERE id = $4`,
		a.Checked, a.UpdatedBy, a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleRole
	}
	return nil
}

func (t *pgTxRepository) InsertUserAssignment(ctx context.Context, roleID int64, a UserAssignment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO role_users (role_id, user_id, is_deleted, created_by, created_at, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		roleID, a.UserID, a.Deleted, a.CreatedBy, a.CreatedAt, a.UpdatedBy, a.UpdatedAt)
	return mapUniqueViolation(err, "uq_role_users")
}

func (t *pgTxRepository) UpdateUserAssignment(ctx context.Context, a UserAssignment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE role_users
		SET is_deleted = $1, updated_by = $2, updated_at = $3
		WHERE id = $4`,
		a.Deleted, a.UpdatedBy, a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleRole
	}
	return nil
}

// mapUniqueViolation turns a duplicate-key failure on an assignment pair
// into the conflict error: two racing reconcilers tried to insert the same
// (role, reference) row and the loser must not duplicate it.
func mapUniqueViolation(err error, constraint string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint {
		return fmt.Errorf("%s: %w", constraint, ErrStaleRole)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.CreatedBy, &role.CreatedAt,
		&role.UpdatedBy, &role.UpdatedAt, &role.Deleted, &role.Purged)
	return role, err
}
