package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("TIER_CURRENCY", "")
	t.Setenv("REDIS_URL", "redis://cache:6379")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "INR", cfg.Tiers.Currency)
	assert.Equal(t, "cache:6379", cfg.Redis.URL)
	assert.Equal(t, 5*time.Minute, cfg.Catalog.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
}

func TestLoad_TierPriceOverrides(t *testing.T) {
	t.Setenv("TIER_DUO_PRICE", "249.00")
	t.Setenv("TIER_CURRENCY", "usd")

	cfg := Load()

	assert.Equal(t, "USD", cfg.Tiers.Currency)
	assert.Equal(t, "249.00", cfg.Tiers.Prices["duo"])
	_, hasSingle := cfg.Tiers.Prices["single"]
	assert.False(t, hasSingle)
}

func TestValidateCore(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080"},
			Database: DatabaseConfig{URL: "postgres://localhost/reelpass"},
			Redis:    RedisConfig{URL: "localhost:6379"},
			JWT:      JWTConfig{Secret: "s3cret"},
			Store:    StoreConfig{Driver: "postgres"},
		}
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, valid().ValidateCore())
	})

	t.Run("default secret rejected", func(t *testing.T) {
		cfg := valid()
		cfg.JWT.Secret = "change-this-secret"
		err := cfg.ValidateCore()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET")
	})

	t.Run("memory driver needs no database", func(t *testing.T) {
		cfg := valid()
		cfg.Store.Driver = "memory"
		cfg.Database.URL = ""
		require.NoError(t, cfg.ValidateCore())
	})

	t.Run("postgres driver needs database", func(t *testing.T) {
		cfg := valid()
		cfg.Database.URL = ""
		err := cfg.ValidateCore()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL")
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := valid()
		cfg.Store.Driver = "dynamo"
		assert.Error(t, cfg.ValidateCore())
	})

	t.Run("bad tier price", func(t *testing.T) {
		cfg := valid()
		cfg.Tiers.Prices = map[string]string{"single": "-1"}
		assert.Error(t, cfg.ValidateCore())
	})
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://reelpass.app, ,https://admin.reelpass.app")

	cfg := Load()

	assert.Equal(t, []string{"https://reelpass.app", "https://admin.reelpass.app"}, cfg.Server.AllowedOrigins)
}
