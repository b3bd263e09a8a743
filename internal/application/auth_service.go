package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-auth/internal/domain/apperror"
	"github.com/oksasatya/go-ddd-auth/internal/domain/entity"
	repo "github.com/oksasatya/go-ddd-auth/internal/domain/repository"
)

const (
	AccessTTL          = 900 * time.Second
	AccessTTLRemember  = 86400 * time.Second
	RefreshTTL         = 604800 * time.Second
	RefreshTTLRemember = 2592000 * time.Second

	// VerificationTTL is how long an email verification token stays valid.
	VerificationTTL = 24 * time.Hour

	TokenTypeBearer = "bearer"

	// values of the "type" claim
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	maxSaveAttempts = 3
	dummyPassword   = "timing-equalizer-Pa55!"
)

// ErrVerificationUnavailable is returned when no verification store is wired.
var ErrVerificationUnavailable = apperror.New(apperror.CodeInternal, "email verification unavailable")

// AuthService implements the authentication use cases.
type AuthService struct {
	Repo          repo.UserRepository
	Hasher        PasswordHasher
	Tokens        TokenService
	Publisher     EventPublisher
	Verifications VerificationStore
	Logger        *logrus.Logger

	// Now is the clock; nil means time.Now.
	Now func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService wires the use cases. publisher and verifications may be nil.
func NewAuthService(r repo.UserRepository, hasher PasswordHasher, tokens TokenService, publisher EventPublisher, verifications VerificationStore, logger *logrus.Logger) *AuthService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AuthService{
		Repo:          r,
		Hasher:        hasher,
		Tokens:        tokens,
		Publisher:     publisher,
		Verifications: verifications,
		Logger:        logger,
	}
}

// PublicUser is the projection of a user that is safe to return to clients.
type PublicUser struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	IsVerified  bool       `json:"is_verified"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func publicUser(u *entity.User) PublicUser {
	return PublicUser{
		ID:          u.ID,
		Email:       u.Email.String(),
		Username:    u.Username.String(),
		IsVerified:  u.IsVerified,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
	}
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// mutate applies fn and saves. On a version conflict the user is reloaded and
// fn applied again, so concurrent writers never lose each other's updates.
func (s *AuthService) mutate(ctx context.Context, u *entity.User, fn func(*entity.User) error) (*entity.User, error) {
	for attempt := 1; ; attempt++ {
		if err := fn(u); err != nil {
			return nil, err
		}
		saved, err := s.Repo.Save(ctx, u)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, repo.ErrVersionConflict) || attempt >= maxSaveAttempts {
			return nil, err
		}
		s.Logger.WithField("user_id", u.ID).WithField("attempt", attempt).Debug("version conflict, reloading user")
		fresh, ferr := s.Repo.FindByID(ctx, u.ID)
		if ferr != nil {
			return nil, ferr
		}
		u = fresh
	}
}

// publish drains the user's pending events in emission order.
func (s *AuthService) publish(ctx context.Context, u *entity.User) {
	events := u.PullEvents()
	if s.Publisher == nil {
		return
	}
	for _, e := range events {
		if err := s.Publisher.Publish(ctx, e); err != nil {
			s.Logger.WithError(err).
				WithField("user_id", e.UserID).
				WithField("event", string(e.Type)).
				Warn("publish domain event failed")
		}
	}
}

// burnHash runs a verification against a fixed hash so that unknown accounts
// take as long as known ones.
func (s *AuthService) burnHash(plain string) {
	s.dummyOnce.Do(func() {
		h, _, err := s.Hasher.Hash(dummyPassword)
		if err != nil {
			s.Logger.WithError(err).Warn("dummy hash failed")
			return
		}
		s.dummyHash = h
	})
	if s.dummyHash != "" {
		_ = s.Hasher.Verify(plain, s.dummyHash)
	}
}

// internal logs cause and returns the generic internal error.
func (s *AuthService) internal(op string, err error) error {
	s.Logger.WithError(err).WithField("op", op).Error("auth operation failed")
	return apperror.Internal(err)
}

// tokenClaims is the payload shared by access and refresh tokens.
func tokenClaims(u *entity.User) map[string]any {
	return map[string]any{
		"sub":         u.ID,
		"email":       u.Email.String(),
		"username":    u.Username.String(),
		"is_verified": u.IsVerified,
	}
}

func ttls(remember bool) (access, refresh time.Duration) {
	if remember {
		return AccessTTLRemember, RefreshTTLRemember
	}
	return AccessTTL, RefreshTTL
}

type tokenPair struct {
	access    string
	refresh   string
	expiresIn time.Duration
}

func (s *AuthService) issueTokens(u *entity.User, remember bool) (tokenPair, error) {
	accessTTL, refreshTTL := ttls(remember)
	claims := tokenClaims(u)
	access, err := s.Tokens.CreateAccessToken(claims, accessTTL)
	if err != nil {
		return tokenPair{}, err
	}
	rc := tokenClaims(u)
	rc["remember_me"] = remember
	refresh, err := s.Tokens.CreateRefreshToken(rc, refreshTTL)
	if err != nil {
		return tokenPair{}, err
	}
	return tokenPair{access: access, refresh: refresh, expiresIn: accessTTL}, nil
}

func claimString(claims map[string]any, key string) string {
	v, _ := claims[key].(string)
	return v
}
