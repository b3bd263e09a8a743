package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/go-ddd-auth/internal/interface/http"
	"github.com/oksasatya/go-ddd-auth/internal/interface/middleware"
)

type AuthModuleConfig struct {
	Auth          *handlers.AuthHandler
	Health        *handlers.HealthHandler
	Audit         *handlers.AuditHandler // optional
	Authenticator middleware.Authenticator
	Redis         *redis.Client // nil disables rate limiting

	LoginRateLimit    int
	RegisterRateLimit int
	RateLimitWindow   time.Duration
}

// AuthModule mounts the /v1/auth routes.
type AuthModule struct {
	cfg AuthModuleConfig
}

func NewAuthModule(cfg AuthModuleConfig) *AuthModule {
	return &AuthModule{cfg: cfg}
}

func (m *AuthModule) Name() string { return "auth" }

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	h := m.cfg.Auth
	window := m.cfg.RateLimitWindow
	loginLimiter := middleware.RateLimit(m.cfg.Redis, m.cfg.LoginRateLimit, window, middleware.KeyByIPAndPath(), nil)
	registerLimiter := middleware.RateLimit(m.cfg.Redis, m.cfg.RegisterRateLimit, window, middleware.KeyByIPAndPath(), nil)
	verifyLimiter := middleware.RateLimit(m.cfg.Redis, 30, time.Minute, middleware.KeyByIPAndPath(), nil)

	auth := rg.Group("/v1/auth")
	auth.POST("/register", registerLimiter, h.Register)
	auth.POST("/login", loginLimiter, h.Login)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/verify-token", h.VerifyToken)
	auth.POST("/verify/confirm", verifyLimiter, h.VerifyConfirm)
	auth.GET("/health", m.cfg.Health.Health)

	protected := auth.Group("")
	protected.Use(middleware.Auth(m.cfg.Authenticator))
	{
		protected.POST("/logout", h.Logout)
		protected.GET("/me", h.Me)
		protected.PUT("/password",
			middleware.RateLimit(m.cfg.Redis, m.cfg.LoginRateLimit, window, middleware.KeyByUserIDAndPath(), nil),
			h.ChangePassword)
		protected.POST("/verify/init",
			middleware.RateLimit(m.cfg.Redis, 5, time.Minute, middleware.KeyByUserID(), nil),
			h.VerifyInit)
		if m.cfg.Audit != nil {
			protected.GET("/audit", m.cfg.Audit.Recent)
		}
	}
}
