package config

import (
	"context"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the bridge.
type Config struct {
	// Server
	Port              int
	ReadHeaderTimeout time.Duration

	// Broker backend type
	BrokerType string // "solace", "redis", or "memory"

	// Solace SMF
	SolaceHost     string // e.g. "tcp://localhost:55555"
	SolaceVPN      string
	SolaceUsername string
	SolacePassword string

	// Redis broker backend
	RedisURL string

	// Blob store backend type
	BlobType string // "s3" or "memory"

	// S3
	S3Bucket       string
	S3Prefix       string
	S3UsePathStyle bool

	// Encryption
	EncryptionEnabled bool
	KeywrapType       string // "local", "kms", or "vault"
	// LocalMasterKey is a 256-bit AES key, hex or base64 encoded. Development only.
	LocalMasterKey string
	// KMSKeyID is the AWS KMS key ID or ARN used by the "kms" keywrap provider.
	KMSKeyID string
	// VaultTransitKey is the Vault Transit key name used by the "vault" keywrap provider.
	VaultTransitKey string
	// KeywrapTimeout bounds each remote wrap/unwrap call.
	KeywrapTimeout time.Duration
	// DEKCacheTTL bounds how long an unwrapped DEK may live in the in-process
	// cache. Zero disables the cache entirely.
	DEKCacheTTL time.Duration

	// Async store worker pool
	StoreWorkers       int
	StoreQueueCapacity int

	// Transformation pipeline
	TransformEnabled     bool
	TransformType        string // a model.TransformationType name, e.g. "MT103_TO_MT202"
	InputQueue           string
	OutputQueue          string
	DeadLetterQueue      string
	RetryMaxAttempts     int
	RetryBaseInterval    time.Duration
	RetryMaxInterval     time.Duration
	DLQListenerEnabled   bool
	DLQWarnThreshold     int64
	DLQCriticalThreshold int64

	// Monitoring
	MetricsLabels string

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:              8080,
		ReadHeaderTimeout: 5 * time.Second,

		BrokerType: "solace",
		SolaceVPN:  "default",

		BlobType: "s3",
		S3Bucket: "solace-messages",

		EncryptionEnabled: true,
		KeywrapType:       "local",
		KeywrapTimeout:    10 * time.Second,
		DEKCacheTTL:       5 * time.Minute,

		StoreWorkers:       50,
		StoreQueueCapacity: 1000,

		TransformType:        "MT103_TO_MT202",
		InputQueue:           "transform/input",
		OutputQueue:          "transform/output",
		DeadLetterQueue:      "transform/dlq",
		RetryMaxAttempts:     3,
		RetryBaseInterval:    time.Second,
		RetryMaxInterval:     60 * time.Second,
		DLQWarnThreshold:     10,
		DLQCriticalThreshold: 100,

		DrainTimeout: 30,
	}
}
