package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oksasatya/go-ddd-auth/pkg/helpers"
)

// ErrTokenNotFound is returned by Consume for unknown, used or expired tokens.
var ErrTokenNotFound = errors.New("verification token not found")

type verification struct {
	userID    string
	expiresAt time.Time
}

// VerificationStore keeps email verification tokens in memory.
type VerificationStore struct {
	mu     sync.Mutex
	tokens map[string]verification
	now    func() time.Time
}

func NewVerificationStore() *VerificationStore {
	return &VerificationStore{tokens: map[string]verification{}, now: time.Now}
}

func (s *VerificationStore) Issue(_ context.Context, userID string, ttl time.Duration) (string, error) {
	tok, err := helpers.RandomToken(32)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tok] = verification{userID: userID, expiresAt: s.now().Add(ttl)}
	return tok, nil
}

// Consume returns the owner of token and forgets it.
func (s *VerificationStore) Consume(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.tokens[token]
	if !ok {
		return "", ErrTokenNotFound
	}
	delete(s.tokens, token)
	if !s.now().Before(v.expiresAt) {
		return "", ErrTokenNotFound
	}
	return v.userID, nil
}
