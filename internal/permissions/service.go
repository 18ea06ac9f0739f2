package permissions

import (
	"context"
	"log/slog"
)

// Service serves the permission catalog.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
}

// NewService wires the permission service.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// List returns the permission catalog, cached.
func (s *Service) List(ctx context.Context) ([]Permission, error) {
	return s.cache.Fetch(ctx, s.repo.List)
}
