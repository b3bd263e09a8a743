package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oksasatya/go-ddd-auth/internal/domain/apperror"
	"github.com/oksasatya/go-ddd-auth/internal/domain/entity"
	repo "github.com/oksasatya/go-ddd-auth/internal/domain/repository"
)

type RegisterInput struct {
	Email           string
	Username        string
	Password        string
	ConfirmPassword string
}

type RegisterResult struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

// Register creates an account and publishes UserRegistered.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email := strings.TrimSpace(in.Email)
	if in.Password != in.ConfirmPassword {
		return nil, apperror.ErrPasswordMismatch
	}

	exists, err := s.Repo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, s.internal("register.exists_email", err)
	}
	if exists {
		return nil, apperror.ErrEmailExists
	}
	exists, err = s.Repo.ExistsByUsername(ctx, in.Username)
	if err != nil {
		return nil, s.internal("register.exists_username", err)
	}
	if exists {
		return nil, apperror.ErrUsernameExists
	}

	if err := entity.ValidatePasswordStrength(in.Password); err != nil {
		return nil, err
	}
	hash, _, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, s.internal("register.hash", err)
	}

	u, err := entity.NewUser(email, in.Username, hash, s.now())
	if err != nil {
		return nil, err
	}
	saved, err := s.Repo.Save(ctx, u)
	switch {
	case errors.Is(err, repo.ErrDuplicateEmail):
		return nil, apperror.ErrEmailExists
	case errors.Is(err, repo.ErrDuplicateUsername):
		return nil, apperror.ErrUsernameExists
	case err != nil:
		return nil, s.internal("register.save", err)
	}
	s.publish(ctx, saved)
	registrations.Add(1)
	s.Logger.WithField("user_id", saved.ID).Info("user registered")

	return &RegisterResult{
		ID:         saved.ID,
		Email:      saved.Email.String(),
		Username:   saved.Username.String(),
		IsVerified: saved.IsVerified,
		CreatedAt:  saved.CreatedAt,
	}, nil
}
