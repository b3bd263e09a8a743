package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-ddd-auth/pkg/helpers"
)

func TestRateLimit_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := helpers.NewRedisClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	key := "rl:test:" + uuid.NewString()
	t.Cleanup(func() { _ = rdb.Del(context.Background(), key).Err() })

	r := gin.New()
	r.GET("/limited", RateLimit(rdb, 2, time.Minute, func(*gin.Context) string { return key }, nil),
		func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i, want := range []struct {
		status    int
		remaining int
	}{
		{http.StatusNoContent, 1},
		{http.StatusNoContent, 0},
		{http.StatusTooManyRequests, 0},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
		assert.Equal(t, want.status, w.Code, "request %d", i+1)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(want.remaining), w.Header().Get("X-RateLimit-Remaining"))
		reset, err := strconv.Atoi(w.Header().Get("X-RateLimit-Reset"))
		require.NoError(t, err)
		assert.InDelta(t, 60, reset, 2)
		if want.status == http.StatusTooManyRequests {
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
			assert.Contains(t, w.Body.String(), "RATE_LIMITED")
		}
	}
}
