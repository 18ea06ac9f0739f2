package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cbes-platform/cbes-api/internal/lifecycle"
	"github.com/cbes-platform/cbes-api/internal/shared"
)

// UserDirectory is the slice of the users module the reconciler needs:
// existence checks for referenced user ids.
type UserDirectory interface {
	MissingUsers(ctx context.Context, ids []int64) ([]int64, error)
}

// AuditRecorder persists audit trail entries for mutations.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements role aggregate use cases.
type Service struct {
	repo   Repository
	users  UserDirectory
	audit  AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the role service.
func NewService(repo Repository, users UserDirectory, audit AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		users:  users,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// WithNow overrides the clock, used by tests for deterministic stamps.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// ListActive returns roles outside the bin.
func (s *Service) ListActive(ctx context.Context) ([]Role, error) {
	return s.repo.ListActive(ctx)
}

// ListBin returns recoverable roles waiting in the bin.
func (s *Service) ListBin(ctx context.Context) ([]Role, error) {
	return s.repo.ListBin(ctx)
}

// GetExpanded returns the aggregate read model for an active role.
func (s *Service) GetExpanded(ctx context.Context, id int64) (RoleExpanded, error) {
	return s.repo.GetExpanded(ctx, id)
}

// Create persists the role row and its initial permission assignments in one
// transaction. Either everything lands or nothing does; a failure after the
// role row was written rolls the row back too. The committed aggregate is
// re-read so callers receive the assignment rows alongside the role.
func (s *Service) Create(ctx context.Context, in CreateRoleInput) (RoleExpanded, error) {
	if err := in.Validate(); err != nil {
		return RoleExpanded{}, err
	}
	now := s.now()

	var created Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.InsertRole(ctx, in.Name, in.ActorID, now)
		if err != nil {
			return err
		}
		plan := PlanPermissionMerge(nil, in.Permissions, in.ActorID, now)
		for _, a := range plan.Inserts {
			if err := tx.InsertPermissionAssignment(ctx, role.ID, a); err != nil {
				return err
			}
		}
		created = role
		return nil
	})
	if err != nil {
		// A racing writer hitting the assignment uniqueness constraint is a
		// conflict, not a storage failure.
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			return RoleExpanded{}, err
		}
		s.logger.Error("role create failed", "name", in.Name, "error", err)
		return RoleExpanded{}, fmt.Errorf("roles: create: %w", shared.ErrFailed)
	}

	s.recordAudit(ctx, in.ActorID, "role.create", created.ID, map[string]any{
		"name":        created.Name,
		"permissions": len(in.Permissions),
	})
	return s.repo.GetExpanded(ctx, created.ID)
}

// UpdatePermissions reconciles the role's permission assignments against the
// desired set and optionally renames the role. The merge is keyed by
// permission id; assignments absent from the desired set are left alone.
func (s *Service) UpdatePermissions(ctx context.Context, in UpdatePermissionsInput) (RoleExpanded, error) {
	if in.ActorID <= 0 {
		return RoleExpanded{}, shared.ErrUnauthenticated
	}
	role, err := s.activeRole(ctx, in.RoleID)
	if err != nil {
		return RoleExpanded{}, err
	}

	existing, err := s.repo.ListPermissionAssignments(ctx, in.RoleID)
	if err != nil {
		return RoleExpanded{}, err
	}

	now := s.now()
	plan := PlanPermissionMerge(existing, in.Permissions, in.ActorID, now)
	renamed := in.Name != nil && *in.Name != role.Name
	if plan.Empty() && !renamed {
		return s.repo.GetExpanded(ctx, in.RoleID)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.StampRole(ctx, in.RoleID, in.Name, in.ActorID, now, role.UpdatedAt); err != nil {
			return err
		}
		return applyPermissionPlan(ctx, tx, in.RoleID, plan)
	})
	if err != nil {
		return RoleExpanded{}, err
	}

	s.recordAudit(ctx, in.ActorID, "role.permissions.update", in.RoleID, map[string]any{
		"inserted": len(plan.Inserts),
		"updated":  len(plan.Updates),
	})
	return s.repo.GetExpanded(ctx, in.RoleID)
}

// UpdateUsers reconciles the role's user membership against the desired set.
// Every referenced user must exist before a single row is touched; membership
// removal is always explicit via the entry's deleted flag.
func (s *Service) UpdateUsers(ctx context.Context, in UpdateUsersInput) (RoleExpanded, error) {
	if in.ActorID <= 0 {
		return RoleExpanded{}, shared.ErrUnauthenticated
	}
	role, err := s.activeRole(ctx, in.RoleID)
	if err != nil {
		return RoleExpanded{}, err
	}

	existing, err := s.repo.ListUserAssignments(ctx, in.RoleID)
	if err != nil {
		return RoleExpanded{}, err
	}

	now := s.now()
	plan, err := PlanUserMerge(existing, in.Users, in.ActorID, now)
	if err != nil {
		return RoleExpanded{}, err
	}
	if err := s.verifyUserRefs(ctx, plan); err != nil {
		return RoleExpanded{}, err
	}
	if plan.Empty() {
		return s.repo.GetExpanded(ctx, in.RoleID)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.StampRole(ctx, in.RoleID, nil, in.ActorID, now, role.UpdatedAt); err != nil {
			return err
		}
		for _, a := range plan.Inserts {
			if err := tx.InsertUserAssignment(ctx, in.RoleID, a); err != nil {
				return err
			}
		}
		for _, a := range plan.Updates {
			if err := tx.UpdateUserAssignment(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return RoleExpanded{}, err
	}

	s.recordAudit(ctx, in.ActorID, "role.users.update", in.RoleID, map[string]any{
		"inserted": len(plan.Inserts),
		"updated":  len(plan.Updates),
	})
	return s.repo.GetExpanded(ctx, in.RoleID)
}

// Delete moves an active role to the bin.
func (s *Service) Delete(ctx context.Context, roleID, actorID int64) error {
	return s.transition(ctx, roleID, actorID, lifecycle.ActionSoftDelete, "role.delete")
}

// Restore moves a binned role back to active.
func (s *Service) Restore(ctx context.Context, roleID, actorID int64) error {
	return s.transition(ctx, roleID, actorID, lifecycle.ActionRestore, "role.restore")
}

// Purge marks a binned role permanently removed. The row stays for the audit
// trail but never resurfaces in any listing or lookup.
func (s *Service) Purge(ctx context.Context, roleID, actorID int64) error {
	return s.transition(ctx, roleID, actorID, lifecycle.ActionPurge, "role.purge")
}

func (s *Service) transition(ctx context.Context, roleID, actorID int64, action lifecycle.Action, auditAction string) error {
	if actorID <= 0 {
		return shared.ErrUnauthenticated
	}
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	next, err := lifecycle.Apply(role.Flags(), action)
	if err != nil {
		// The entity is not in a state that admits the action; from the
		// caller's perspective it does not exist there.
		return ErrRoleNotFound
	}
	if _, err := s.repo.TransitionRole(ctx, roleID, role.Flags(), next, actorID, s.now()); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, auditAction, roleID, nil)
	return nil
}

// activeRole loads the role and rejects anything not in the active state.
func (s *Service) activeRole(ctx context.Context, roleID int64) (Role, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if role.Flags().State() != lifecycle.StateActive {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

// verifyUserRefs fails the whole call before the transaction opens when any
// newly referenced user does not exist.
func (s *Service) verifyUserRefs(ctx context.Context, plan UserPlan) error {
	if len(plan.Inserts) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(plan.Inserts))
	for _, a := range plan.Inserts {
		ids = append(ids, a.UserID)
	}
	missing, err := s.users.MissingUsers(ctx, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("roles: unknown user ids %v: %w", missing, shared.ErrInvalidReference)
	}
	return nil
}

func applyPermissionPlan(ctx context.Context, tx TxRepository, roleID int64, plan PermissionPlan) error {
	for _, a := range plan.Inserts {
		if err := tx.InsertPermissionAssignment(ctx, roleID, a); err != nil {
			return err
		}
	}
	for _, a := range plan.Updates {
		if err := tx.UpdatePermissionAssignment(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, roleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", "action", action, "role_id", roleID, "error", err)
	}
}
