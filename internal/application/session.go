package application

import (
	"context"
	"errors"
	"time"

	"github.com/oksasatya/go-ddd-auth/internal/domain/apperror"
	"github.com/oksasatya/go-ddd-auth/internal/domain/entity"
	repo "github.com/oksasatya/go-ddd-auth/internal/domain/repository"
)

// Principal is the authenticated caller behind an access token.
type Principal struct {
	UserID     string
	Email      string
	Username   string
	IsVerified bool
	ExpiresAt  time.Time
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// removed from the user's set before the new one is added, so each refresh
// token is usable once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := s.Tokens.VerifyToken(refreshToken)
	if err != nil || claimString(claims, "type") != tokenTypeRefresh {
		return nil, apperror.ErrTokenInvalid
	}
	userID := claimString(claims, "sub")
	if userID == "" {
		return nil, apperror.ErrTokenInvalid
	}

	removed, err := s.Repo.RemoveRefreshToken(ctx, userID, refreshToken)
	if err != nil {
		return nil, s.internal("refresh.remove", err)
	}
	if !removed {
		s.Logger.WithField("user_id", userID).Warn("refresh token not in active set")
		return nil, apperror.ErrTokenInvalid
	}

	u, err := s.Repo.FindByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperror.ErrTokenInvalid
	}
	if err != nil {
		return nil, s.internal("refresh.find", err)
	}
	if u.State() != entity.StateActiveUnlocked {
		return nil, apperror.ErrTokenInvalid
	}

	remember, _ := claims["remember_me"].(bool)
	tokens, err := s.issueTokens(u, remember)
	if err != nil {
		return nil, s.internal("refresh.tokens", err)
	}
	if err := s.Repo.AddRefreshToken(ctx, u.ID, tokens.refresh); err != nil {
		return nil, s.internal("refresh.add", err)
	}

	return &LoginResult{
		AccessToken:  tokens.access,
		RefreshToken: tokens.refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(tokens.expiresIn.Seconds()),
		User:         publicUser(u),
	}, nil
}

// Logout revokes refreshToken, or every refresh token when it is empty.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string) error {
	u, err := s.Repo.FindByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return apperror.ErrUserNotFound
	}
	if err != nil {
		return s.internal("logout.find", err)
	}
	now := s.now()
	saved, err := s.mutate(ctx, u, func(u *entity.User) error {
		u.Logout(refreshToken, now)
		return nil
	})
	if err != nil {
		return s.internal("logout.save", err)
	}
	s.publish(ctx, saved)
	return nil
}

// Authenticate resolves an access token to the active user it was issued for.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	claims, err := s.Tokens.VerifyToken(accessToken)
	if err != nil || claimString(claims, "type") != tokenTypeAccess {
		return nil, apperror.ErrTokenInvalid
	}
	u, err := s.Repo.FindByID(ctx, claimString(claims, "sub"))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperror.ErrTokenInvalid
	}
	if err != nil {
		return nil, s.internal("authenticate.find", err)
	}
	if !u.IsActive {
		return nil, apperror.ErrTokenInvalid
	}
	p := &Principal{
		UserID:     u.ID,
		Email:      u.Email.String(),
		Username:   u.Username.String(),
		IsVerified: u.IsVerified,
	}
	if exp, ok := s.Tokens.GetExpiry(accessToken); ok {
		p.ExpiresAt = exp
	}
	return p, nil
}

// Profile returns the public projection of a user.
func (s *AuthService) Profile(ctx context.Context, userID string) (*PublicUser, error) {
	u, err := s.Repo.FindByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperror.ErrUserNotFound
	}
	if err != nil {
		return nil, s.internal("profile.find", err)
	}
	p := publicUser(u)
	return &p, nil
}

// TokenInfo is the result of introspecting a token.
type TokenInfo struct {
	IsValid   bool       `json:"is_valid"`
	UserID    string     `json:"user_id,omitempty"`
	Email     string     `json:"email,omitempty"`
	Type      string     `json:"type,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IntrospectToken reports whether token is currently valid and, if so, whom
// it belongs to. It never returns an error for a bad token.
func (s *AuthService) IntrospectToken(token string) TokenInfo {
	claims, err := s.Tokens.VerifyToken(token)
	if err != nil {
		return TokenInfo{}
	}
	info := TokenInfo{
		IsValid: true,
		UserID:  claimString(claims, "sub"),
		Email:   claimString(claims, "email"),
		Type:    claimString(claims, "type"),
	}
	if exp, ok := s.Tokens.GetExpiry(token); ok {
		info.ExpiresAt = &exp
	}
	return info
}

type ChangePasswordInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// ChangePassword replaces the credential after checking the current one and
// revokes every refresh token. Locked accounts are refused.
func (s *AuthService) ChangePassword(ctx context.Context, in ChangePasswordInput) error {
	if in.NewPassword != in.ConfirmPassword {
		return apperror.ErrPasswordMismatch
	}
	u, err := s.Repo.FindByID(ctx, in.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return apperror.ErrUserNotFound
	}
	if err != nil {
		return s.internal("change_password.find", err)
	}
	if u.IsLocked() {
		accountLocked.Add(1)
		return apperror.ErrAccountLocked
	}
	// a wrong current password counts toward the lockout like a failed login
	if !s.Hasher.Verify(in.CurrentPassword, u.PasswordHash) {
		return s.recordFailure(ctx, u)
	}
	if err := entity.ValidatePasswordStrength(in.NewPassword); err != nil {
		return err
	}
	hash, _, err := s.Hasher.Hash(in.NewPassword)
	if err != nil {
		return s.internal("change_password.hash", err)
	}
	now := s.now()
	saved, err := s.mutate(ctx, u, func(u *entity.User) error {
		u.ChangePassword(hash, now)
		return nil
	})
	if err != nil {
		return s.internal("change_password.save", err)
	}
	s.publish(ctx, saved)
	return nil
}

// VerificationTicket carries a freshly issued email verification token.
type VerificationTicket struct {
	Token           string
	UserID          string
	Email           string
	Username        string
	ExpiresAt       time.Time
	AlreadyVerified bool
}

// RequestEmailVerification issues a verification token for the user. Verified
// users get a ticket with AlreadyVerified set and no token.
func (s *AuthService) RequestEmailVerification(ctx context.Context, userID string) (*VerificationTicket, error) {
	if s.Verifications == nil {
		return nil, ErrVerificationUnavailable
	}
	u, err := s.Repo.FindByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperror.ErrUserNotFound
	}
	if err != nil {
		return nil, s.internal("verify_init.find", err)
	}
	t := &VerificationTicket{
		UserID:   u.ID,
		Email:    u.Email.String(),
		Username: u.Username.String(),
	}
	if u.IsVerified {
		t.AlreadyVerified = true
		return t, nil
	}
	tok, err := s.Verifications.Issue(ctx, u.ID, VerificationTTL)
	if err != nil {
		return nil, s.internal("verify_init.issue", err)
	}
	t.Token = tok
	t.ExpiresAt = s.now().Add(VerificationTTL)
	return t, nil
}

// ConfirmEmailVerification consumes token and marks the owner verified.
func (s *AuthService) ConfirmEmailVerification(ctx context.Context, token string) (*PublicUser, error) {
	if s.Verifications == nil {
		return nil, ErrVerificationUnavailable
	}
	if token == "" {
		return nil, apperror.ErrTokenInvalid
	}
	userID, err := s.Verifications.Consume(ctx, token)
	if err != nil || userID == "" {
		return nil, apperror.ErrTokenInvalid
	}
	u, err := s.Repo.FindByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperror.ErrTokenInvalid
	}
	if err != nil {
		return nil, s.internal("verify_confirm.find", err)
	}
	now := s.now()
	saved, err := s.mutate(ctx, u, func(u *entity.User) error {
		u.VerifyEmail(now)
		return nil
	})
	if err != nil {
		return nil, s.internal("verify_confirm.save", err)
	}
	s.publish(ctx, saved)
	p := publicUser(saved)
	return &p, nil
}
