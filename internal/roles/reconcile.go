package roles

import (
	"fmt"
	"time"

	"github.com/cbes-platform/cbes-api/internal/shared"
)

// PermissionPlan is the outcome of diffing a desired permission set against
// the persisted assignment rows: rows to insert and rows to update, nothing
// else. Rows for permissions absent from the desired set are deliberately
// not part of the plan — omission never means removal, because callers
// normally submit the complete permission catalog with unchecked entries.
type PermissionPlan struct {
	Inserts []PermissionAssignment
	Updates []PermissionAssignment
}

// Empty reports whether applying the plan would change nothing.
func (p PermissionPlan) Empty() bool {
	return len(p.Inserts) == 0 && len(p.Updates) == 0
}

// PlanPermissionMerge diffs desired against existing by permission id.
// A matched row is updated only when its checked flag actually changes, so
// replaying the same desired set is a no-op. Duplicate desired entries for
// one permission collapse to the last occurrence, preserving the
// one-row-per-(role,permission) invariant.
func PlanPermissionMerge(existing []PermissionAssignment, desired []PermissionSelection, actorID int64, now time.Time) PermissionPlan {
	byPermission := make(map[int64]PermissionAssignment, len(existing))
	for _, a := range existing {
		byPermission[a.PermissionID] = a
	}

	var plan PermissionPlan
	planned := make(map[int64]int) // permission id -> index into Inserts
	for _, d := range desired {
		if d.PermissionID <= 0 {
			continue
		}
		if current, ok := byPermission[d.PermissionID]; ok {
			if current.Checked == d.Checked {
				continue
			}
			current.Checked = d.Checked
			current.UpdatedBy = actorID
			current.UpdatedAt = now
			plan.Updates = append(plan.Updates, current)
			byPermission[d.PermissionID] = current
			continue
		}
		if idx, ok := planned[d.PermissionID]; ok {
			plan.Inserts[idx].Checked = d.Checked
			continue
		}
		plan.Inserts = append(plan.Inserts, PermissionAssignment{
			PermissionID: d.PermissionID,
			Checked:      d.Checked,
			CreatedBy:    actorID,
			CreatedAt:    now,
			UpdatedBy:    actorID,
			UpdatedAt:    now,
		})
		planned[d.PermissionID] = len(plan.Inserts) - 1
	}
	return plan
}

// UserPlan mirrors PermissionPlan for user assignments.
type UserPlan struct {
	Inserts []UserAssignment
	Updates []UserAssignment
}

// Empty reports whether applying the plan would change nothing.
func (p UserPlan) Empty() bool {
	return len(p.Inserts) == 0 && len(p.Updates) == 0
}

// PlanUserMerge diffs desired against existing by user id. Existing rows
// must include soft-deleted assignments so that re-attaching a previously
// removed user flips the flag back instead of inserting a duplicate row.
// The desired deleted flag only applies to rows that already exist; a user
// with no row is always inserted attached. Any non-positive user id aborts
// the whole plan before a single row is touched.
func PlanUserMerge(existing []UserAssignment, desired []UserSelection, actorID int64, now time.Time) (UserPlan, error) {
	for _, d := range desired {
		if d.UserID <= 0 {
			return UserPlan{}, fmt.Errorf("roles: user id %d: %w", d.UserID, shared.ErrInvalidReference)
		}
	}

	byUser := make(map[int64]UserAssignment, len(existing))
	for _, a := range existing {
		byUser[a.UserID] = a
	}

	var plan UserPlan
	planned := make(map[int64]bool)
	for _, d := range desired {
		if current, ok := byUser[d.UserID]; ok {
			if current.Deleted == d.Deleted {
				continue
			}
			current.Deleted = d.Deleted
			current.UpdatedBy = actorID
			current.UpdatedAt = now
			plan.Updates = append(plan.Updates, current)
			byUser[d.UserID] = current
			continue
		}
		if planned[d.UserID] {
			continue
		}
		plan.Inserts = append(plan.Inserts, UserAssignment{
			UserID:    d.UserID,
			CreatedBy: actorID,
			CreatedAt: now,
			UpdatedBy: actorID,
			UpdatedAt: now,
		})
		planned[d.UserID] = true
	}
	return plan, nil
}
