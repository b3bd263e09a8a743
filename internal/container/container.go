// Package container builds the process-wide dependency graph from config.
package container

import (
	"context"
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-auth/config"
	"github.com/oksasatya/go-ddd-auth/internal/application"
	"github.com/oksasatya/go-ddd-auth/internal/domain/repository"
	esinfra "github.com/oksasatya/go-ddd-auth/internal/infrastructure/elasticsearch"
	"github.com/oksasatya/go-ddd-auth/internal/infrastructure/memory"
	pginfra "github.com/oksasatya/go-ddd-auth/internal/infrastructure/postgres"
	"github.com/oksasatya/go-ddd-auth/internal/infrastructure/rabbitmq"
	"github.com/oksasatya/go-ddd-auth/internal/infrastructure/redisstore"
	"github.com/oksasatya/go-ddd-auth/internal/infrastructure/security"
	"github.com/oksasatya/go-ddd-auth/pkg/helpers"
)

// Container holds the constructed components. Optional backends (Redis,
// RabbitMQ, Elasticsearch) are nil when not configured or unreachable.
type Container struct {
	Config *config.Config
	Logger *logrus.Logger

	PGPool     *pgxpool.Pool
	Redis      *redis.Client
	EventsPub  *helpers.RabbitPublisher
	EmailQueue *helpers.RabbitPublisher
	ES         *elasticsearch.Client

	Repo          repository.UserRepository
	Hasher        *security.PasswordHasher
	Tokens        *security.TokenService
	Publisher     application.EventPublisher
	Verifications application.VerificationStore
	Audit         *esinfra.AuditIndex

	Auth *application.AuthService
}

// HasherConfig converts the hashing settings of cfg.
func HasherConfig(cfg *config.Config) security.HasherConfig {
	return security.HasherConfig{
		Algorithm: cfg.HashAlgorithm,
		Argon2: argon2id.Params{
			Memory:      cfg.Argon2Memory,
			Iterations:  cfg.Argon2Iterations,
			Parallelism: cfg.Argon2Parallelism,
			SaltLength:  cfg.Argon2SaltLength,
			KeyLength:   cfg.Argon2KeyLength,
		},
		BcryptCost: cfg.BcryptCost,
	}
}

// New connects the configured backends and wires the auth service. Postgres
// is mandatory unless STORAGE_DRIVER=memory; the other backends degrade to
// no-ops with a warning.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	hasher, err := security.NewPasswordHasher(HasherConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}
	tokens, err := security.NewTokenService(security.TokenConfig{
		Secret:    cfg.JWTSecret,
		Algorithm: cfg.JWTAlgorithm,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
	})
	if err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}
	c.Hasher, c.Tokens = hasher, tokens

	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("using in-memory user storage; data is lost on restart")
		c.Repo = memory.NewUserRepository()
	case "postgres", "":
		pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), pginfra.PoolOptions{
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnLifetime: cfg.DBMaxConnLife,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		c.PGPool = pool
		if err := pginfra.Migrate(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		c.Repo = pginfra.NewUserRepository(pool)
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	c.connectRedis(ctx)
	c.connectRabbit()
	c.connectES()

	c.Verifications = memory.NewVerificationStore()
	if c.Redis != nil {
		c.Verifications = redisstore.NewVerificationStore(c.Redis)
	}
	c.Publisher = rabbitmq.NopPublisher{}
	if c.EventsPub != nil {
		c.Publisher = rabbitmq.NewEventPublisher(c.EventsPub, logger)
	}
	if c.ES != nil && cfg.ESAuditIndex != "" {
		c.Audit = esinfra.NewAuditIndex(c.ES, cfg.ESAuditIndex)
	}

	c.Auth = application.NewAuthService(c.Repo, c.Hasher, c.Tokens, c.Publisher, c.Verifications, logger)
	return c, nil
}

func (c *Container) connectRedis(ctx context.Context) {
	if c.Config.RedisAddr == "" {
		return
	}
	rdb := helpers.NewRedisClient(c.Config.RedisAddr, c.Config.RedisPassword, c.Config.RedisDB)
	if err := rdb.Ping(ctx).Err(); err != nil {
		c.Logger.WithError(err).Warn("redis unavailable; rate limiting off, verification tokens kept in memory")
		_ = rdb.Close()
		return
	}
	c.Redis = rdb
}

func (c *Container) connectRabbit() {
	if c.Config.RabbitMQURL == "" {
		return
	}
	events, err := helpers.NewRabbitPublisher(c.Config.RabbitMQURL, c.Config.RabbitMQEventsQueue, c.Logger)
	if err != nil {
		c.Logger.WithError(err).Warn("rabbitmq unavailable; domain events are dropped")
		return
	}
	c.EventsPub = events
	emails, err := helpers.NewRabbitPublisher(c.Config.RabbitMQURL, c.Config.RabbitMQEmailQueue, c.Logger)
	if err != nil {
		c.Logger.WithError(err).Warn("rabbitmq email queue unavailable")
		return
	}
	c.EmailQueue = emails
}

func (c *Container) connectES() {
	addrs := c.Config.ESAddrs()
	if len(addrs) == 0 {
		return
	}
	es, err := helpers.NewESClient(addrs, c.Config.ElasticsearchUser, c.Config.ElasticsearchPass)
	if err != nil {
		c.Logger.WithError(err).Warn("elasticsearch client init failed")
		return
	}
	c.ES = es
}

// Close releases every open connection.
func (c *Container) Close() {
	c.EventsPub.Close()
	c.EmailQueue.Close()
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.PGPool != nil {
		c.PGPool.Close()
	}
}
