package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("CHECKOUT_HOLD_MINUTES", "")

	cfg := Load()

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Checkout.HoldDuration)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, "usd", cfg.Payment.Currency)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SESSION_TTL_HOURS", "2")
	t.Setenv("ADMIN_EMAIL", "  Admin@Delified.io ")
	t.Setenv("PAYMENT_CURRENCY", "EUR")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, "admin@delified.io", cfg.Auth.AdminEmail)
	assert.Equal(t, "eur", cfg.Payment.Currency)
	assert.Equal(t, 0, cfg.Redis.DB, "invalid ints fall back to the default")
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
		t.Setenv("DB_DRIVER", "sqlite")
		return Load()
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, valid(t).Validate())
	})

	t.Run("short secret and missing dsn", func(t *testing.T) {
		cfg := valid(t)
		cfg.Auth.JWTSecret = "short"
		cfg.Database.Driver = "postgres"
		cfg.Database.PostgresDSN = ""

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET")
		assert.Contains(t, err.Error(), "POSTGRES_DSN")
	})

	t.Run("admin credentials come in pairs", func(t *testing.T) {
		cfg := valid(t)
		cfg.Auth.AdminEmail = "admin@delified.io"
		cfg.Auth.AdminPassword = ""
		assert.ErrorContains(t, cfg.Validate(), "ADMIN_EMAIL")
	})

	t.Run("stripe needs webhook secret", func(t *testing.T) {
		cfg := valid(t)
		cfg.Payment.StripeSecretKey = "sk_test_123"
		assert.ErrorContains(t, cfg.Validate(), "STRIPE_WEBHOOK_SECRET")
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := valid(t)
		cfg.Database.Driver = "mysql"
		assert.ErrorContains(t, cfg.Validate(), "unsupported DB_DRIVER")
	})
}

func TestBadgeSecretFallsBackToJWTSecret(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{JWTSecret: "jwt"}}
	assert.Equal(t, "jwt", cfg.BadgeSecret())

	cfg.Badge.Secret = "badge"
	assert.Equal(t, "badge", cfg.BadgeSecret())
}
