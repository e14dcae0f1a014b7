package config

import (
	"os"
	"strings"
	"time"
)

// App captures process-level configuration so main stays lean.
type App struct {
	Addr          string
	DatabaseURL   string
	JWTSigningKey string
	Redis         Redis
	Kafka         Kafka
	// OutboxInterval is how often the audit outbox worker drains.
	OutboxInterval time.Duration
}

// Redis captures cache connection settings. An empty URL disables the cache.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// DatasetTTL bounds how long a cached working copy may serve as a
	// degraded fallback.
	DatasetTTL time.Duration
}

// Kafka captures audit stream settings. No brokers disables the stream.
type Kafka struct {
	Brokers []string
	Topic   string
}

// FromEnv builds an App config from environment variables.
func FromEnv() App {
	addr := os.Getenv("CLICR_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("AUDIT_TOPIC")
	if topic == "" {
		topic = "clicr.audit"
	}
	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return App{
		Addr:          addr,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSigningKey: jwtSigningKey,
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			DatasetTTL:   15 * time.Minute,
		},
		Kafka: Kafka{
			Brokers: brokers,
			Topic:   topic,
		},
		OutboxInterval: 5 * time.Second,
	}
}
