package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// RateLimitConfig holds rate limiting settings for the HTTP surface.
type RateLimitConfig struct {
	Enabled                 bool
	SendRequestsPerWindow   int
	SendWindowMinutes       int
	VerifyRequestsPerWindow int
	VerifyWindowMinutes     int
}

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int
	AppBaseURL string

	// Database
	DBDriver   string // postgres, sqlite or memory
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// Secrets
	HashKey   string
	JWTSecret string

	// Token lifetimes and throttling
	PasswordResetTTL time.Duration
	TwoFactorTTL     time.Duration
	ChannelVerifyTTL time.Duration
	ReissueAfter     time.Duration

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	// SMS gateway
	SMSGatewayURL   string
	SMSGatewayToken string

	RateLimit RateLimitConfig
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		AppBaseURL: getEnv("APP_BASE_URL", "http://localhost:8080"),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "veritoken"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "veritoken.db"),

		HashKey:   getEnv("VERIFICATOR_HASH_KEY", ""),
		JWTSecret: getEnv("JWT_SECRET", ""),

		PasswordResetTTL: getEnvDuration("PASSWORD_RESET_TTL", time.Hour),
		TwoFactorTTL:     getEnvDuration("TWOFACTOR_CODE_TTL", 5*time.Minute),
		ChannelVerifyTTL: getEnvDuration("CHANNEL_VERIFY_TTL", 5*time.Minute),
		ReissueAfter:     getEnvDuration("REISSUE_AFTER", time.Minute),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", ""),

		SMSGatewayURL:   getEnv("SMS_GATEWAY_URL", ""),
		SMSGatewayToken: getEnv("SMS_GATEWAY_TOKEN", ""),

		RateLimit: RateLimitConfig{
			Enabled:                 getEnvBool("RATE_LIMIT_ENABLED", true),
			SendRequestsPerWindow:   getEnvInt("RATE_LIMIT_SEND_REQUESTS", 5),
			SendWindowMinutes:       getEnvInt("RATE_LIMIT_SEND_WINDOW_MINUTES", 15),
			VerifyRequestsPerWindow: getEnvInt("RATE_LIMIT_VERIFY_REQUESTS", 10),
			VerifyWindowMinutes:     getEnvInt("RATE_LIMIT_VERIFY_WINDOW_MINUTES", 15),
		},
	}

	if cfg.HashKey == "" {
		return nil, fmt.Errorf("VERIFICATOR_HASH_KEY is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

// HasSMTP returns true if an SMTP host is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTPHost != ""
}

// HasSMS returns true if an SMS gateway is configured.
func (c *Config) HasSMS() bool {
	return c.SMSGatewayURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
