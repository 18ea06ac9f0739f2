package users

import (
	"fmt"
	"time"

	"github.com/cbes-platform/cbes-api/internal/shared"
)

// User is a back-office principal. Accounts are soft-deleted, never removed,
// so historical audit stamps keep resolving.
type User struct {
	ID           int64
	Fullname     string
	Username     string
	PasswordHash string
	Deleted      bool
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedBy    int64
	UpdatedAt    time.Time
}

// ErrUserNotFound wraps the shared taxonomy for handler mapping.
var ErrUserNotFound = fmt.Errorf("users: user %w", shared.ErrNotFound)
