package cbes

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/cbes-platform/cbes-api/internal/lifecycle"
	"github.com/cbes-platform/cbes-api/internal/shared"
)

// AuditRecorder persists audit trail entries for mutations.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements CBE use cases.
type Service struct {
	repo   Repository
	audit  AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the CBE service.
func NewService(repo Repository, audit AuditRecorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests for deterministic stamps.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// ListActive returns records outside the bin.
func (s *Service) ListActive(ctx context.Context) ([]CBE, error) {
	return s.repo.ListActive(ctx)
}

// ListBin returns recoverable records waiting in the bin.
func (s *Service) ListBin(ctx context.Context) ([]CBE, error) {
	return s.repo.ListBin(ctx)
}

// Get returns one active record.
func (s *Service) Get(ctx context.Context, id int64) (CBE, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return CBE{}, err
	}
	if c.Flags().State() != lifecycle.StateActive {
		return CBE{}, ErrCBENotFound
	}
	return c, nil
}

// Create registers a CBE record.
func (s *Service) Create(ctx context.Context, in CreateInput) (CBE, error) {
	if err := in.Validate(); err != nil {
		return CBE{}, err
	}
	c, err := s.repo.Insert(ctx, in, s.now())
	if err != nil {
		return CBE{}, err
	}
	s.recordAudit(ctx, in.ActorID, "cbe.create", c.ID, map[string]any{"thai_name": c.ThaiName})
	return c, nil
}

// Update replaces provided fields on an active record.
func (s *Service) Update(ctx context.Context, in UpdateInput) (CBE, error) {
	if in.ActorID <= 0 {
		return CBE{}, shared.ErrUnauthenticated
	}
	current, err := s.Get(ctx, in.ID)
	if err != nil {
		return CBE{}, err
	}
	updated, err := s.repo.Update(ctx, in, s.now(), current.UpdatedAt)
	if err != nil {
		return CBE{}, err
	}
	s.recordAudit(ctx, in.ActorID, "cbe.update", in.ID, nil)
	return updated, nil
}

// Delete moves an active record to the bin.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	return s.transition(ctx, id, actorID, lifecycle.ActionSoftDelete, "cbe.delete")
}

// Restore moves a binned record back to active.
func (s *Service) Restore(ctx context.Context, id, actorID int64) error {
	return s.transition(ctx, id, actorID, lifecycle.ActionRestore, "cbe.restore")
}

// Purge marks a binned record permanently removed.
func (s *Service) Purge(ctx context.Context, id, actorID int64) error {
	return s.transition(ctx, id, actorID, lifecycle.ActionPurge, "cbe.purge")
}

func (s *Service) transition(ctx context.Context, id, actorID int64, action lifecycle.Action, auditAction string) error {
	if actorID <= 0 {
		return shared.ErrUnauthenticated
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	next, err := lifecycle.Apply(c.Flags(), action)
	if err != nil {
		return ErrCBENotFound
	}
	if _, err := s.repo.Transition(ctx, id, c.Flags(), next, actorID, s.now()); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, auditAction, id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "cbe",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", "action", action, "cbe_id", id, "error", err)
	}
}
