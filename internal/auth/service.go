package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/marcuspat/devxplatform/internal/platform/httpx"
	"github.com/marcuspat/devxplatform/internal/users"
)

// UserStore is the slice of the users repository the auth flow needs.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
}

// UserRegistrar creates new accounts during self-registration.
type UserRegistrar interface {
	Create(ctx context.Context, req users.CreateUserRequest) (*users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	store     UserStore
	registrar UserRegistrar
	tokens    *TokenManager
}

// NewService constructs a new Service.
func NewService(store UserStore, registrar UserRegistrar, tokens *TokenManager) *Service {
	return &Service{store: store, registrar: registrar, tokens: tokens}
}

// Authenticate validates email/password credentials. Every failure collapses
// into ErrUnauthorized so callers cannot enumerate accounts.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, errors.Join(httpx.ErrUnauthorized, errors.New("invalid credentials"))
	}
	if !user.IsActive {
		return nil, errors.Join(httpx.ErrUnauthorized, errors.New("invalid credentials"))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.Join(httpx.ErrUnauthorized, errors.New("invalid credentials"))
	}
	return user, nil
}

// IssueToken creates an access token for an authenticated user.
func (s *Service) IssueToken(user *users.User) (string, error) {
	return s.tokens.Issue(user)
}

// Register creates a new account and issues its first access token.
func (s *Service) Register(ctx context.Context, req users.CreateUserRequest) (*users.User, string, error) {
	user, err := s.registrar.Create(ctx, req)
	if err != nil {
		return nil, "", err
	}
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Refresh issues a fresh access token for the bearer of a still-valid one.
// The account is re-checked so a deactivated user cannot extend a session.
func (s *Service) Refresh(ctx context.Context, claims *Claims) (string, error) {
	user, err := s.store.FindByEmail(ctx, claims.Email)
	if err != nil {
		return "", errors.Join(httpx.ErrUnauthorized, errors.New("invalid credentials"))
	}
	if !user.IsActive {
		return "", errors.Join(httpx.ErrUnauthorized, errors.New("invalid credentials"))
	}
	return s.tokens.Issue(user)
}
