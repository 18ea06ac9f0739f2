package roles

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cbes-platform/cbes-api/internal/lifecycle"
	"github.com/cbes-platform/cbes-api/internal/shared"
)

// Role is the aggregate root. Its permission and user assignments live and
// die with it; they are only ever mutated through the reconcilers.
type Role struct {
	ID        int64
	Name      string
	CreatedBy int64
	CreatedAt time.Time
	UpdatedBy int64
	UpdatedAt time.Time
	Deleted   bool
	Purged    bool
}

// Flags exposes the lifecycle view of the persisted soft-delete columns.
func (r Role) Flags() lifecycle.Flags {
	return lifecycle.Flags{Deleted: r.Deleted, Purged: r.Purged}
}

// PermissionAssignment joins a role to a permission. At most one row exists
// per (RoleID, PermissionID); an unchecked row stays around as historical
// toggle state instead of being removed.
type PermissionAssignment struct {
	ID             int64
	RoleID         int64
	PermissionID   int64
	PermissionName string
	Checked        bool
	Deleted        bool
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedBy      int64
	UpdatedAt      time.Time
}

// UserAssignment joins a role to a user. Membership removal sets the Deleted
// flag on the row, never deletes it, so the audit trail survives.
type UserAssignment struct {
	ID           int64
	RoleID       int64
	UserID       int64
	UserFullname string
	UserUsername string
	Deleted      bool
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedBy    int64
	UpdatedAt    time.Time
}

// RoleExpanded is the full read model: the role plus its permission
// assignments (joined to permission names) and its non-deleted user
// assignments (joined to user identity fields).
type RoleExpanded struct {
	Role
	Permissions []PermissionAssignment
	Users       []UserAssignment
}

// PermissionSelection is one entry of the desired permission set submitted
// by the caller.
type PermissionSelection struct {
	PermissionID int64
	Checked      bool
}

// UserSelection is one entry of the desired user set. Deleted expresses
// explicit removal; omission never does.
type UserSelection struct {
	UserID  int64
	Deleted bool
}

// CreateRoleInput bundles parameters for creating a role with its initial
// permission assignments.
type CreateRoleInput struct {
	Name        string
	Permissions []PermissionSelection
	ActorID     int64
}

// Validate ensures the create input is coherent.
func (in CreateRoleInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("roles: name required")
	}
	if in.ActorID <= 0 {
		return shared.ErrUnauthenticated
	}
	return nil
}

// UpdatePermissionsInput carries the desired permission set for a role.
// Name is optional; nil leaves the current name untouched.
type UpdatePermissionsInput struct {
	RoleID      int64
	Name        *string
	Permissions []PermissionSelection
	ActorID     int64
}

// UpdateUsersInput carries the desired user set for a role.
type UpdateUsersInput struct {
	RoleID  int64
	Users   []UserSelection
	ActorID int64
}

// Module errors wrap the shared taxonomy so handlers can map them without
// knowing this package.
var (
	ErrRoleNotFound = fmt.Errorf("roles: role %w", shared.ErrNotFound)
	ErrStaleRole    = fmt.Errorf("roles: %w", shared.ErrConcurrencyConflict)
)
