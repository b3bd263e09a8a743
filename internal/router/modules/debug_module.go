package modules

import (
	"expvar"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/go-ddd-auth/internal/interface/middleware"
)

// DebugModule exposes expvar counters at /debug/vars.
type DebugModule struct {
	rdb *redis.Client
}

func NewDebugModule(rdb *redis.Client) *DebugModule { return &DebugModule{rdb: rdb} }

func (m *DebugModule) Name() string { return "debug" }

func (m *DebugModule) Register(rg *gin.RouterGroup) {
	// rate-limited per IP; private scrapers bypass
	rl := middleware.RateLimit(m.rdb, 120, time.Minute, middleware.KeyByIP(), middleware.AllowPrivateIP())
	rg.GET("/debug/vars", rl, gin.WrapH(expvar.Handler()))
}
