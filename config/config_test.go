package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"STORAGE_DRIVER", "JWT_ALGORITHM", "HASH_ALGORITHM", "ARGON2_MEMORY_KIB", "BCRYPT_COST", "RATE_LIMIT_WINDOW"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "postgres", cfg.StorageDriver)
	assert.Equal(t, "HS256", cfg.JWTAlgorithm)
	assert.Equal(t, "argon2id", cfg.HashAlgorithm)
	assert.Equal(t, uint32(102400), cfg.Argon2Memory)
	assert.Equal(t, uint32(2), cfg.Argon2Iterations)
	assert.Equal(t, uint8(8), cfg.Argon2Parallelism)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "Memory")
	t.Setenv("JWT_ALGORITHM", "hs512")
	t.Setenv("HASH_ALGORITHM", "BCRYPT")
	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("COOKIE_SECURE", "true")

	cfg := Load()
	assert.Equal(t, "memory", cfg.StorageDriver)
	assert.Equal(t, "HS512", cfg.JWTAlgorithm)
	assert.Equal(t, "bcrypt", cfg.HashAlgorithm)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	assert.True(t, cfg.CookieSecure)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("BCRYPT_COST", "twelve")
	t.Setenv("COOKIE_SECURE", "maybe")
	t.Setenv("RATE_LIMIT_WINDOW", "soon")

	cfg := Load()
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
}

func TestConfig_Lists(t *testing.T) {
	cfg := &Config{
		CORSAllowedOrigins: " http://a.test, ,http://b.test ",
		ElasticsearchAddrs: "http://es1:9200,http://es2:9200",
	}
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins())
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.ESAddrs())
	assert.Empty(t, (&Config{}).CORSOrigins())
}

func TestConfig_PostgresDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: "5432", DBName: "auth", DBSSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/auth?sslmode=disable", cfg.PostgresDSN())
}
