package router

import (
	"context"

	"github.com/oksasatya/go-ddd-auth/internal/container"
	handlers "github.com/oksasatya/go-ddd-auth/internal/interface/http"
	"github.com/oksasatya/go-ddd-auth/internal/router/modules"
	"github.com/oksasatya/go-ddd-auth/pkg/helpers"
)

type AuthModuleDeps struct {
	Auth   *handlers.AuthHandler
	Health *handlers.HealthHandler
	Audit  *handlers.AuditHandler
}

func buildAuthDeps(c *container.Container) AuthModuleDeps {
	var queue handlers.EmailQueue
	if c.EmailQueue != nil {
		queue = c.EmailQueue
	}
	deps := AuthModuleDeps{
		Auth:   handlers.NewAuthHandler(c.Auth, c.Logger, c.Config, queue),
		Health: handlers.NewHealthHandler(c.Config.AppName, healthChecks(c)),
	}
	if c.Audit != nil {
		deps.Audit = handlers.NewAuditHandler(c.Audit, c.Logger)
	}
	return deps
}

func healthChecks(c *container.Container) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if c.PGPool != nil {
		checks["postgres"] = c.PGPool.Ping
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() }
	}
	if c.EventsPub != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if !c.EventsPub.Healthy() {
				return helpers.ErrPublisherClosed
			}
			return nil
		}
	}
	if c.ES != nil {
		checks["elasticsearch"] = func(ctx context.Context) error { return helpers.PingES(ctx, c.ES) }
	}
	return checks
}

// InitModules wires every feature module from the container and adds it to
// the registry. Call once during startup, before RegisterAll.
func InitModules(r *Registry, c *container.Container) {
	deps := buildAuthDeps(c)
	r.Add(modules.NewAuthModule(modules.AuthModuleConfig{
		Auth:              deps.Auth,
		Health:            deps.Health,
		Audit:             deps.Audit,
		Authenticator:     c.Auth,
		Redis:             c.Redis,
		LoginRateLimit:    c.Config.LoginRateLimit,
		RegisterRateLimit: c.Config.RegisterRateLimit,
		RateLimitWindow:   c.Config.RateLimitWindow,
	}))
	if c.Config.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(c.Redis))
	}
}
