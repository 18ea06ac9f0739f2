package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/cbes-platform/cbes-api/internal/shared"
	"github.com/cbes-platform/cbes-api/internal/users"
)

// Credentials is the slice of the users module authentication needs.
type Credentials interface {
	GetByUsername(ctx context.Context, username string) (users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	creds Credentials
	repo  Repository
}

// NewService constructs a new Service.
func NewService(creds Credentials, repo Repository) *Service {
	return &Service{creds: creds, repo: repo}
}

// Authenticate validates username/password credentials. All failure modes
// collapse into ErrInvalidCredentials so the response never reveals whether
// the account exists.
func (s *Service) Authenticate(ctx context.Context, username, password string) (users.User, error) {
	user, err := s.creds.GetByUsername(ctx, username)
	if err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, rec SessionRecord) error {
	return s.repo.CreateSession(ctx, rec)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
