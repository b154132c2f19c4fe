package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// ErrUnavailable is returned when the user directory cannot be read.
var ErrUnavailable = errors.New("auth: user directory unavailable")

// Compared against when the email is unknown so a miss costs a bcrypt round.
var missingUserHash, _ = bcrypt.GenerateFromPassword([]byte("missing-user"), bcrypt.DefaultCost)

// Service checks credentials against the user directory.
type Service struct {
	repo Repository
}

// NewService constructs a Service over repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate returns the active user matching email and password.
// Unknown, inactive and mismatched accounts all yield
// shared.ErrInvalidCredentials; lookup failures yield ErrUnavailable.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.repo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		_ = bcrypt.CompareHashAndPassword(missingUserHash, []byte(password))
		return nil, shared.ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}
