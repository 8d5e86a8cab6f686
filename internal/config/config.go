package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Payment  PaymentConfig
	Checkout CheckoutConfig
	Badge    BadgeConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Driver       string // postgres or sqlite
	PostgresDSN  string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	AutoMigrate  bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	GroupID string
}

type AuthConfig struct {
	JWTSecret     string
	SessionTTL    time.Duration
	AdminEmail    string
	AdminPassword string
	OIDCIssuer    string
	CookieSecure  bool
}

type PaymentConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
}

type CheckoutConfig struct {
	HoldDuration            time.Duration
	RegistrationLockTimeout time.Duration
}

type BadgeConfig struct {
	Secret string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0, // SSE streams stay open
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			PostgresDSN:  os.Getenv("POSTGRES_DSN"),
			SQLitePath:   getEnv("SQLITE_PATH", "file:delified.db?cache=shared"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:  getEnvBool("MIGRATIONS_AUTO", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "delified"),
		},
		Auth: AuthConfig{
			JWTSecret:     os.Getenv("JWT_SECRET"),
			SessionTTL:    time.Duration(getEnvInt("SESSION_TTL_HOURS", 24)) * time.Hour,
			AdminEmail:    strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
			AdminPassword: os.Getenv("ADMIN_PASSWORD"),
			OIDCIssuer:    os.Getenv("OIDC_ISSUER"),
			CookieSecure:  getEnvBool("COOKIE_SECURE", true),
		},
		Payment: PaymentConfig{
			StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Currency:            strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
		},
		Checkout: CheckoutConfig{
			HoldDuration:            time.Duration(getEnvInt("CHECKOUT_HOLD_MINUTES", 15)) * time.Minute,
			RegistrationLockTimeout: time.Duration(getEnvInt("REGISTRATION_LOCK_SECONDS", 10)) * time.Second,
		},
		Badge: BadgeConfig{
			Secret: os.Getenv("BADGE_SECRET"),
		},
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN not set"))
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL_HOURS must be positive"))
	}
	if c.Checkout.HoldDuration <= 0 {
		errs = append(errs, errors.New("CHECKOUT_HOLD_MINUTES must be positive"))
	}
	if c.Checkout.RegistrationLockTimeout <= 0 {
		errs = append(errs, errors.New("REGISTRATION_LOCK_SECONDS must be positive"))
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}
	if c.Payment.StripeSecretKey != "" && c.Payment.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required with STRIPE_SECRET_KEY"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS not set"))
	}

	return errors.Join(errs...)
}

// BadgeSecret falls back to the JWT secret so a single-secret deployment still works.
func (c *Config) BadgeSecret() string {
	if c.Badge.Secret != "" {
		return c.Badge.Secret
	}
	return c.Auth.JWTSecret
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
