package users

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Service implements user directory use cases.
type Service struct {
	repo     Repository
	logger   *slog.Logger
	collator *collate.Collator
}

// NewService wires the user service. Listing is ordered with a Thai collator
// because the directory holds Thai full names and byte order scrambles them.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		logger:   logger,
		collator: collate.New(language.Thai),
	}
}

// List returns active users ordered by full name.
func (s *Service) List(ctx context.Context) ([]User, error) {
	list, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return s.collator.CompareString(list[i].Fullname, list[j].Fullname) < 0
	})
	return list, nil
}

// GetByUsername resolves a live account for authentication.
func (s *Service) GetByUsername(ctx context.Context, username string) (User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// MissingUsers reports which of the given ids have no live account. The roles
// module consults this before attaching members.
func (s *Service) MissingUsers(ctx context.Context, ids []int64) ([]int64, error) {
	return s.repo.MissingIDs(ctx, ids)
}
