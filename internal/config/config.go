package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Payment   PaymentConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Messaging MessagingConfig
	Alerts    AlertConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port            string
	Env             string
	LogLevel        string
	AllowedOrigins  []string
	TrustedProxies  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// PaymentConfig controls the authorization pipeline
type PaymentConfig struct {
	DefaultDailyLimit    decimal.Decimal
	MaxFailedPINAttempts int
	PINHashAlgorithm     string
	FailedPINDelay       time.Duration
	LockTimeout          time.Duration
	HistoryLimit         int
}

type RateLimitConfig struct {
	AuthorizePerMinute int
	LoginPerMinute     int
}

// RedisConfig enables the distributed per-user lock when URL is set
type RedisConfig struct {
	URL       string
	KeyPrefix string
	LockTTL   time.Duration
}

// MessagingConfig enables event publishing when AMQPURL is set
type MessagingConfig struct {
	AMQPURL         string
	PaymentExchange string
	OpsExchange     string
	OpsBufferSize   int
	PublishTimeout  time.Duration
}

type AlertConfig struct {
	SESEnabled bool
	AWSRegion  string
	Sender     string
	Recipients []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	dailyLimit, err := getEnvAsDecimal("DEFAULT_DAILY_LIMIT", decimal.NewFromInt(1000))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "tappay"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			ConnectTimeout:    getEnvAsDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Env:             env,
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:  parseAllowedOrigins(env),
			TrustedProxies:  getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			Issuer:            getEnv("JWT_ISSUER", "tappay"),
		},
		Payment: PaymentConfig{
			DefaultDailyLimit:    dailyLimit,
			MaxFailedPINAttempts: getEnvAsInt("MAX_FAILED_PIN_ATTEMPTS", 5),
			PINHashAlgorithm:     strings.ToLower(getEnv("PIN_HASH_ALGORITHM", "bcrypt")),
			FailedPINDelay:       getEnvAsDuration("FAILED_PIN_DELAY", 0),
			LockTimeout:          getEnvAsDuration("USER_LOCK_TIMEOUT", 5*time.Second),
			HistoryLimit:         getEnvAsInt("HISTORY_LIMIT", 50),
		},
		RateLimit: RateLimitConfig{
			AuthorizePerMinute: getEnvAsInt("RATE_LIMIT_AUTHORIZE_PER_MINUTE", 30),
			LoginPerMinute:     getEnvAsInt("RATE_LIMIT_LOGIN_PER_MINUTE", 10),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "tappay:lock"),
			LockTTL:   getEnvAsDuration("REDIS_LOCK_TTL", 10*time.Second),
		},
		Messaging: MessagingConfig{
			AMQPURL:         getEnv("RABBITMQ_URL", ""),
			PaymentExchange: getEnv("PAYMENT_EVENTS_EXCHANGE", "payment_events"),
			OpsExchange:     getEnv("OPS_EVENTS_EXCHANGE", "ops_events"),
			OpsBufferSize:   getEnvAsInt("OPS_ERROR_BUFFER", 256),
			PublishTimeout:  getEnvAsDuration("PUBLISH_TIMEOUT", 3*time.Second),
		},
		Alerts: AlertConfig{
			SESEnabled: getEnvAsBool("SES_ALERTS_ENABLED", false),
			AWSRegion:  getEnv("AWS_REGION", "us-east-1"),
			Sender:     getEnv("ALERT_SENDER", ""),
			Recipients: getEnvAsList("ALERT_RECIPIENTS"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Payment.validate(); err != nil {
		return nil, err
	}

	if cfg.Alerts.SESEnabled && (cfg.Alerts.Sender == "" || len(cfg.Alerts.Recipients) == 0) {
		return nil, fmt.Errorf("ALERT_SENDER and ALERT_RECIPIENTS are required when SES_ALERTS_ENABLED is set")
	}

	return cfg, nil
}

func (p *PaymentConfig) validate() error {
	if p.DefaultDailyLimit.IsNegative() {
		return fmt.Errorf("DEFAULT_DAILY_LIMIT must not be negative")
	}
	if p.MaxFailedPINAttempts < 1 {
		return fmt.Errorf("MAX_FAILED_PIN_ATTEMPTS must be at least 1")
	}
	switch p.PINHashAlgorithm {
	case "bcrypt", "sha256":
	default:
		return fmt.Errorf("PIN_HASH_ALGORITHM must be bcrypt or sha256 (got %q)", p.PINHashAlgorithm)
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{"secret", "password", "changeme", "default", "example"}
	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsDecimal fails loudly on a malformed amount; a silent default would change limits
func getEnvAsDecimal(key string, defaultVal decimal.Decimal) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal amount: %w", key, err)
	}
	return d.Round(2), nil
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS")
	}

	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
	}
}
