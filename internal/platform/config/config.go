// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; production overrides
// via env.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the process needs at boot.
type Config struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	TokenTTL      time.Duration

	// DatabaseURL selects the postgres stores when set; empty runs on the
	// in-memory stores (dev, tests).
	DatabaseURL string

	Redis RedisConfig

	// ConsentGraceWindow is how long an approval stays valid.
	ConsentGraceWindow time.Duration
	// ConsentSweepInterval is the cadence of the expiry sweep.
	ConsentSweepInterval time.Duration
	// AccountPurgeInterval is the cadence of the account purge sweep.
	AccountPurgeInterval time.Duration
	// AccountDeletionGrace is how long a deletion request waits before the
	// account becomes purge-eligible.
	AccountDeletionGrace time.Duration

	BlobFetchTimeout time.Duration

	SMTP SMTPConfig

	// KafkaBrokers enables the audit Kafka sink when non-empty.
	KafkaBrokers []string
	AuditTopic   string
}

// RedisConfig configures the optional redis client. Empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SMTPConfig configures the notification sender. Empty host falls back to the
// log-only notifier.
type SMTPConfig struct {
	Host string
	Port int
	From string
	User string
	Pass string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:                 envString("DATASHARE_ADDR", ":8080"),
		JWTSigningKey:        envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:            envString("JWT_ISSUER", "datashare"),
		TokenTTL:             envDuration("TOKEN_TTL", 24*time.Hour),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		ConsentGraceWindow:   envDuration("CONSENT_GRACE_WINDOW", 72*time.Hour),
		ConsentSweepInterval: envDuration("CONSENT_SWEEP_INTERVAL", time.Hour),
		AccountPurgeInterval: envDuration("ACCOUNT_PURGE_INTERVAL", 24*time.Hour),
		AccountDeletionGrace: envDuration("ACCOUNT_DELETION_GRACE", 7*24*time.Hour),
		BlobFetchTimeout:     envDuration("BLOB_FETCH_TIMEOUT", 30*time.Second),
		AuditTopic:           envString("AUDIT_TOPIC", "datashare.audit"),
	}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     envInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}

	cfg.SMTP = SMTPConfig{
		Host: os.Getenv("SMTP_HOST"),
		Port: envInt("SMTP_PORT", 587),
		From: envString("SMTP_FROM", "no-reply@datashare.local"),
		User: os.Getenv("SMTP_USER"),
		Pass: os.Getenv("SMTP_PASS"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
