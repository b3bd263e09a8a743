package application

import (
	"context"
	"errors"
	"strings"

	"github.com/oksasatya/go-ddd-auth/internal/domain/apperror"
	"github.com/oksasatya/go-ddd-auth/internal/domain/entity"
	repo "github.com/oksasatya/go-ddd-auth/internal/domain/repository"
)

type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
}

type LoginResult struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
	User         PublicUser `json:"user"`
}

// Login checks the credentials and issues a token pair.
//
// Unknown email and wrong password both yield ErrInvalidCredentials. A locked
// account yields ErrAccountLocked, including on the attempt that locks it.
// Every attempt against an existing active account is persisted.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperror.ErrInvalidCredentials
	}

	u, err := s.Repo.FindByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		s.burnHash(in.Password)
		loginFailures.Add(1)
		return nil, apperror.ErrInvalidCredentials
	}
	if err != nil {
		return nil, s.internal("login.find", err)
	}

	if u.IsLocked() {
		accountLocked.Add(1)
		return nil, apperror.ErrAccountLocked
	}

	ok := s.Hasher.Verify(in.Password, u.PasswordHash)
	if !u.IsActive {
		loginFailures.Add(1)
		if !ok {
			return nil, apperror.ErrInvalidCredentials
		}
		return nil, apperror.ErrAccountInactive
	}
	if !ok {
		return nil, s.recordFailure(ctx, u)
	}

	var rehash string
	if s.Hasher.NeedsRehash(u.PasswordHash) {
		if h, _, herr := s.Hasher.Hash(in.Password); herr != nil {
			s.Logger.WithError(herr).WithField("user_id", u.ID).Warn("credential rehash failed")
		} else {
			rehash = h
		}
	}

	tokens, err := s.issueTokens(u, in.RememberMe)
	if err != nil {
		return nil, s.internal("login.tokens", err)
	}

	now := s.now()
	saved, err := s.mutate(ctx, u, func(u *entity.User) error {
		if err := u.LoginSucceeded(now); err != nil {
			return err
		}
		u.RehashCredential(rehash, now)
		u.AddRefreshToken(tokens.refresh, now)
		return nil
	})
	if err != nil {
		var ae *apperror.Error
		if errors.As(err, &ae) && ae.Code != apperror.CodeInternal {
			return nil, err
		}
		return nil, s.internal("login.save", err)
	}
	s.publish(ctx, saved)
	loginSuccesses.Add(1)

	return &LoginResult{
		AccessToken:  tokens.access,
		RefreshToken: tokens.refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(tokens.expiresIn.Seconds()),
		User:         publicUser(saved),
	}, nil
}

// recordFailure persists a failed attempt. The attempt is reported as an
// internal error when it cannot be stored so the counter is never skipped.
func (s *AuthService) recordFailure(ctx context.Context, u *entity.User) error {
	now := s.now()
	saved, err := s.mutate(ctx, u, func(u *entity.User) error {
		return u.LoginFailed(now)
	})
	switch {
	case errors.Is(err, apperror.ErrAccountLocked):
		accountLocked.Add(1)
		return apperror.ErrAccountLocked
	case errors.Is(err, apperror.ErrAccountInactive):
		loginFailures.Add(1)
		return apperror.ErrInvalidCredentials
	case err != nil:
		return s.internal("login.record_failure", err)
	}
	loginFailures.Add(1)
	if saved.IsLocked() {
		accountLocked.Add(1)
		s.Logger.WithField("user_id", saved.ID).Warn("account locked after repeated failed logins")
		return apperror.ErrAccountLocked
	}
	return apperror.ErrInvalidCredentials
}
