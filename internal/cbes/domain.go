package cbes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cbes-platform/cbes-api/internal/lifecycle"
	"github.com/cbes-platform/cbes-api/internal/shared"
)

// CBE is a community-based enterprise record, the master data this service
// exists to manage. Names are kept in both Thai and English because the
// registry is bilingual.
type CBE struct {
	ID        int64
	ThaiName  string
	EngName   string
	ShortName string
	Detail    string
	CreatedBy int64
	CreatedAt time.Time
	UpdatedBy int64
	UpdatedAt time.Time
	Deleted   bool
	Purged    bool
}

// Flags exposes the lifecycle view of the persisted soft-delete columns.
func (c CBE) Flags() lifecycle.Flags {
	return lifecycle.Flags{Deleted: c.Deleted, Purged: c.Purged}
}

// CreateInput bundles parameters for registering a CBE.
type CreateInput struct {
	ThaiName  string
	EngName   string
	ShortName string
	Detail    string
	ActorID   int64
}

// Validate ensures the create input is coherent.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.ThaiName) == "" {
		return errors.New("cbes: thai name required")
	}
	if in.ActorID <= 0 {
		return shared.ErrUnauthenticated
	}
	return nil
}

// UpdateInput carries a full field replacement for an existing CBE. Nil
// fields keep their current value.
type UpdateInput struct {
	ID        int64
	ThaiName  *string
	EngName   *string
	ShortName *string
	Detail    *string
	ActorID   int64
}

// Module errors wrap the shared taxonomy so handlers can map them without
// knowing this package.
var (
	ErrCBENotFound = fmt.Errorf("cbes: record %w", shared.ErrNotFound)
	ErrStaleCBE    = fmt.Errorf("cbes: %w", shared.ErrConcurrencyConflict)
)
