package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/marcuspat/devxplatform/internal/platform/cache"
	"github.com/marcuspat/devxplatform/internal/platform/httpx"
)

// Service handles user business logic with a read-through cache for lookups.
type Service struct {
	repo   Repository
	cache  *cache.Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a Service instance. The cache may be nil.
func NewService(repo Repository, c *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cache:  c,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func cacheKey(id uuid.UUID) string {
	return "user:" + id.String()
}

// Create registers a new user with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, req CreateUserRequest) (*User, error) {
	existing, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, httpx.ErrNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email already registered", httpx.ErrDuplicate)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := User{
		ID:           uuid.New(),
		Email:        req.Email,
		Username:     req.Username,
		FullName:     req.FullName,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

// Get returns the user by ID, served from cache when possible.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	if s.cache != nil {
		var cached User
		err := s.cache.Get(ctx, cacheKey(id), &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("user cache read failed", slog.Any("error", err))
		}
	}

	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey(id), user); err != nil {
			s.logger.Warn("user cache write failed", slog.Any("error", err))
		}
	}
	return user, nil
}

// List returns a page of users.
func (s *Service) List(ctx context.Context, req ListUsersRequest) ([]User, int, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	return s.repo.List(ctx, req)
}

// Update applies a partial update and invalidates the cache entry.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*User, error) {
	updates := make(map[string]any)
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Username != nil {
		updates["username"] = *req.Username
	}
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		updates["password_hash"] = string(hash)
	}

	if len(updates) > 0 {
		if err := s.repo.Update(ctx, id, updates); err != nil {
			return nil, err
		}
		s.invalidate(ctx, id)
	}
	return s.repo.Get(ctx, id)
}

// Delete removes the user and its cache entry.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(id)); err != nil {
		s.logger.Warn("user cache invalidation failed", slog.Any("error", err))
	}
}
