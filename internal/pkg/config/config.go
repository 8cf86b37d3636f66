// Package config assembles the typed runtime configuration from the
// environment loaded by internal/pkg/env.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/env"
)

const (
	GatewayNoop       = "noop"
	GatewaySandbox    = "sandbox"
	GatewayProduction = "production"

	EventsLog   = "log"
	EventsRedis = "redis"
	EventsKafka = "kafka"
)

type App struct {
	Env  string
	Host string
	Port string
}

type Database struct {
	Driver      string
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	AutoMigrate bool
}

type Cache struct {
	Host     string
	Port     string
	Password string
}

// Addr returns host:port for the redis client.
func (c Cache) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type Gateway struct {
	Strategy         string
	APILogin         string
	TransactionKey   string
	Timeout          time.Duration
	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type Webhook struct {
	SignatureKey  string
	AllowUnsigned bool
}

type Idempotency struct {
	TTL   time.Duration
	Lease time.Duration
	Wait  time.Duration
}

type Reconciliation struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
}

type Events struct {
	Backend      string
	KafkaBrokers []string
	KafkaTopic   string
	RedisStream  string
}

type Archive struct {
	Enabled         bool
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string
}

// Config is the complete orchestrator configuration.
type Config struct {
	App            App
	Database       Database
	Cache          Cache
	Gateway        Gateway
	Webhook        Webhook
	Idempotency    Idempotency
	Reconciliation Reconciliation
	Events         Events
	Archive        Archive
	AutoCapture    bool
	AdminAPIKey    string
	RateLimitMax   int
}

// IsDev reports whether the app runs in the dev environment.
func (c *Config) IsDev() bool {
	return c.App.Env == "dev"
}

func millis(key string, def int) time.Duration {
	return time.Duration(env.GetInt(key, def)) * time.Millisecond
}

// Load reads the configuration from env and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		App: App{
			Env:  env.GetEnv("APP_ENV", "prod"),
			Host: env.GetEnv("APP_HOST", "0.0.0.0"),
			Port: env.GetEnv("APP_PORT", "8080"),
		},
		Database: Database{
			Driver:      strings.ToLower(env.GetEnv("DB_DRIVER", "mysql")),
			Host:        env.GetEnv("DB_HOST", "127.0.0.1"),
			Port:        env.GetEnv("DB_PORT", ""),
			User:        env.GetEnv("DB_USER", ""),
			Password:    env.GetEnv("DB_PASSWORD", ""),
			Name:        env.GetEnv("DB_NAME", "payments"),
			AutoMigrate: env.GetBool("DB_AUTO_MIGRATE", false),
		},
		Cache: Cache{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
		},
		Gateway: Gateway{
			Strategy:         strings.ToLower(env.GetEnv("GATEWAY_STRATEGY", GatewayNoop)),
			APILogin:         env.GetEnv("AUTHORIZE_NET_API_LOGIN", ""),
			TransactionKey:   env.GetEnv("AUTHORIZE_NET_TRANSACTION_KEY", ""),
			Timeout:          millis("GATEWAY_TIMEOUT_MS", 5000),
			MaxAttempts:      env.GetInt("GATEWAY_MAX_ATTEMPTS", 3),
			BackoffBase:      millis("GATEWAY_BACKOFF_BASE_MS", 200),
			BackoffMax:       millis("GATEWAY_BACKOFF_MAX_MS", 2000),
			BreakerThreshold: env.GetInt("GATEWAY_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  millis("GATEWAY_BREAKER_COOLDOWN_MS", 30000),
		},
		Webhook: Webhook{
			SignatureKey:  strings.TrimSpace(env.GetEnv("WEBHOOK_SIGNATURE_KEY", "")),
			AllowUnsigned: env.GetBool("WEBHOOK_ALLOW_UNSIGNED", false),
		},
		Idempotency: Idempotency{
			TTL:   time.Duration(env.GetInt("IDEMPOTENCY_TTL_HOURS", 24)) * time.Hour,
			Lease: time.Duration(env.GetInt("IDEMPOTENCY_LEASE_SECONDS", 30)) * time.Second,
			Wait:  millis("IDEMPOTENCY_WAIT_MS", 5000),
		},
		Reconciliation: Reconciliation{
			Enabled:   env.GetBool("RECONCILE_ENABLED", true),
			Interval:  time.Duration(env.GetInt("RECONCILE_INTERVAL_SECONDS", 60)) * time.Second,
			BatchSize: env.GetInt("RECONCILE_BATCH_SIZE", 100),
		},
		Events: Events{
			Backend:      strings.ToLower(env.GetEnv("EVENTS_BACKEND", EventsLog)),
			KafkaBrokers: splitList(env.GetEnv("KAFKA_BROKERS", "")),
			KafkaTopic:   env.GetEnv("KAFKA_TOPIC", "payment-events"),
			RedisStream:  env.GetEnv("EVENTS_REDIS_CHANNEL", "payment-events"),
		},
		Archive: Archive{
			Enabled:         env.GetBool("S3_ARCHIVE_ENABLED", false),
			AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
			Region:          env.GetEnv("S3_REGION", "us-east-1"),
			BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
			EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		},
		AutoCapture:  env.GetBool("ORDER_AUTO_CAPTURE", false),
		AdminAPIKey:  env.GetEnv("ADMIN_API_KEY", ""),
		RateLimitMax: env.GetInt("RATE_LIMIT_MAX", 120),
	}

	if cfg.Database.Port == "" {
		cfg.Database.Port = defaultPort(cfg.Database.Driver)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be mysql or postgres, got %q", c.Database.Driver)
	}

	switch c.Gateway.Strategy {
	case GatewayNoop, GatewaySandbox:
	case GatewayProduction:
		if c.Gateway.APILogin == "" || c.Gateway.TransactionKey == "" {
			return errors.New("AUTHORIZE_NET_API_LOGIN and AUTHORIZE_NET_TRANSACTION_KEY are required for the production gateway")
		}
	default:
		return fmt.Errorf("GATEWAY_STRATEGY must be noop, sandbox or production, got %q", c.Gateway.Strategy)
	}
	if c.Gateway.MaxAttempts < 1 {
		return errors.New("GATEWAY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Gateway.BreakerThreshold < 1 {
		return errors.New("GATEWAY_BREAKER_THRESHOLD must be at least 1")
	}
	if c.Gateway.Timeout <= 0 {
		return errors.New("GATEWAY_TIMEOUT_MS must be positive")
	}

	if c.Webhook.SignatureKey != "" {
		if _, err := hex.DecodeString(c.Webhook.SignatureKey); err != nil {
			return fmt.Errorf("WEBHOOK_SIGNATURE_KEY must be hex encoded: %w", err)
		}
	} else if !c.Webhook.AllowUnsigned {
		return errors.New("WEBHOOK_SIGNATURE_KEY is required unless WEBHOOK_ALLOW_UNSIGNED=true")
	}

	if c.Idempotency.TTL <= 0 || c.Idempotency.Lease <= 0 {
		return errors.New("IDEMPOTENCY_TTL_HOURS and IDEMPOTENCY_LEASE_SECONDS must be positive")
	}
	if c.Reconciliation.Enabled && c.Reconciliation.Interval <= 0 {
		return errors.New("RECONCILE_INTERVAL_SECONDS must be positive")
	}
	if c.Reconciliation.BatchSize < 1 {
		return errors.New("RECONCILE_BATCH_SIZE must be at least 1")
	}

	switch c.Events.Backend {
	case EventsLog, EventsRedis:
	case EventsKafka:
		if len(c.Events.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when EVENTS_BACKEND=kafka")
		}
	default:
		return fmt.Errorf("EVENTS_BACKEND must be log, redis or kafka, got %q", c.Events.Backend)
	}

	if c.Archive.Enabled {
		if c.Archive.AccessKeyID == "" {
			return errors.New("S3_ACCESS_KEY_ID is required when S3 archive is enabled")
		}
		if c.Archive.SecretAccessKey == "" {
			return errors.New("S3_SECRET_ACCESS_KEY is required when S3 archive is enabled")
		}
		if c.Archive.BucketName == "" {
			return errors.New("S3_BUCKET_NAME is required when S3 archive is enabled")
		}
	}
	return nil
}

func defaultPort(driver string) string {
	if driver == "postgres" {
		return "5432"
	}
	return "3306"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
