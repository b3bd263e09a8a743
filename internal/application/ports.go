package application

import (
	"context"
	"time"

	"github.com/oksasatya/go-ddd-auth/internal/domain/event"
)

// PasswordHasher hashes and checks credentials. Implemented by
// security.PasswordHasher.
type PasswordHasher interface {
	Hash(plain string) (hash string, algorithm string, err error)
	Verify(plain, hash string) bool
	NeedsRehash(hash string) bool
}

// TokenService issues and verifies bearer tokens. Implemented by
// security.TokenService.
type TokenService interface {
	CreateAccessToken(claims map[string]any, ttl time.Duration) (string, error)
	CreateRefreshToken(claims map[string]any, ttl time.Duration) (string, error)
	VerifyToken(token string) (map[string]any, error)
	DecodeToken(token string) (map[string]any, error)
	IsExpired(token string) bool
	GetExpiry(token string) (time.Time, bool)
}

// EventPublisher delivers domain events. Delivery is fire-and-forget from the
// use cases' point of view.
type EventPublisher interface {
	Publish(ctx context.Context, e event.Event) error
}

// VerificationStore keeps single-use email verification tokens.
type VerificationStore interface {
	Issue(ctx context.Context, userID string, ttl time.Duration) (string, error)
	Consume(ctx context.Context, token string) (userID string, err error)
}
