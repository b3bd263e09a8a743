package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-ddd-auth/pkg/helpers"
)

func newStore(t *testing.T) *VerificationStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := helpers.NewRedisClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return NewVerificationStore(rdb)
}

func TestVerificationStore_IssueConsume(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tok, err := s.Issue(ctx, "user-1", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	ttl, err := s.rdb.TTL(ctx, helpers.KeyVerifyToken(tok)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	userID, err := s.Consume(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	_, err = s.Consume(ctx, tok)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestVerificationStore_Expired(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tok, err := s.Issue(ctx, "user-2", 50*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(150 * time.Millisecond)

	_, err = s.Consume(ctx, tok)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
