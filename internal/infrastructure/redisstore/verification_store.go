// Package redisstore keeps short-lived auth state in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/go-ddd-auth/pkg/helpers"
)

// ErrTokenNotFound is returned by Consume for unknown, used or expired tokens.
var ErrTokenNotFound = errors.New("verification token not found")

// VerificationStore maps email verification tokens to user ids. Expiry is
// delegated to the key TTL.
type VerificationStore struct {
	rdb *redis.Client
}

func NewVerificationStore(rdb *redis.Client) *VerificationStore {
	return &VerificationStore{rdb: rdb}
}

func (s *VerificationStore) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	tok, err := helpers.RandomToken(32)
	if err != nil {
		return "", err
	}
	ok, err := s.rdb.SetNX(ctx, helpers.KeyVerifyToken(tok), userID, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("store verification token: %w", err)
	}
	if !ok {
		return "", errors.New("verification token collision")
	}
	return tok, nil
}

// Consume returns the owner of token and deletes the key in the same round trip.
func (s *VerificationStore) Consume(ctx context.Context, token string) (string, error) {
	userID, err := s.rdb.GetDel(ctx, helpers.KeyVerifyToken(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume verification token: %w", err)
	}
	return userID, nil
}
