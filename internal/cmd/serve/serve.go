// Package serve implements the serve sub-command: it wires the broker
// gateway, blob store, encryption, exclusion engine and transformation
// pipeline together and runs the HTTP API.
package serve

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/chirino/solace-bridge/internal/config"

	// Import all plugins to trigger init() registration
	_ "github.com/chirino/solace-bridge/internal/plugin/blob/memstore"
	_ "github.com/chirino/solace-bridge/internal/plugin/blob/s3store"
	_ "github.com/chirino/solace-bridge/internal/plugin/broker/memory"
	_ "github.com/chirino/solace-bridge/internal/plugin/broker/redis"
	_ "github.com/chirino/solace-bridge/internal/plugin/broker/solace"
	_ "github.com/chirino/solace-bridge/internal/plugin/extract/delimited"
	_ "github.com/chirino/solace-bridge/internal/plugin/extract/fixedpos"
	_ "github.com/chirino/solace-bridge/internal/plugin/extract/pattern"
	_ "github.com/chirino/solace-bridge/internal/plugin/extract/structured"
	_ "github.com/chirino/solace-bridge/internal/plugin/keywrap/awskms"
	_ "github.com/chirino/solace-bridge/internal/plugin/keywrap/local"
	_ "github.com/chirino/solace-bridge/internal/plugin/keywrap/vault"
	_ "github.com/chirino/solace-bridge/internal/plugin/route/system"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the bridge HTTP server and queue consumers",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_PORT"),
			Destination: &cfg.Port,
			Value:       cfg.Port,
			Usage:       "HTTP server port",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown drain timeout in seconds",
		},

		// ── Broker ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "broker",
			Category:    "Broker:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_BROKER"),
			Destination: &cfg.BrokerType,
			Value:       cfg.BrokerType,
			Usage:       "Broker backend: solace, redis, or memory",
		},
		&cli.StringFlag{
			Name:        "solace-host",
			Category:    "Broker:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_SOLACE_HOST"),
			Destination: &cfg.SolaceHost,
			Usage:       "Solace SMF host, e.g. tcp://localhost:55555",
		},
		&cli.StringFlag{
			Name:        "solace-vpn",
			Category:    "Broker:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_SOLACE_VPN"),
			Destination: &cfg.SolaceVPN,
			Value:       cfg.SolaceVPN,
			Usage:       "Solace message VPN name",
		},
		&cli.StringFlag{
			Name:        "solace-username",
			Category:    "Broker:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_SOLACE_USERNAME"),
			Destination: &cfg.SolaceUsername,
			Usage:       "Solace username",
		},
		&cli.StringFlag{
			Name:        "solace-password",
			Category:    "Broker:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_SOLACE_PASSWORD"),
			Destination: &cfg.SolacePassword,
			Usage:       "Solace password",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Broker:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis URL for the redis broker backend",
		},

		// ── Storage ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "blob-store",
			Category:    "Storage:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_BLOB_STORE"),
			Destination: &cfg.BlobType,
			Value:       cfg.BlobType,
			Usage:       "Blob store backend: s3 or memory",
		},
		&cli.StringFlag{
			Name:        "s3-bucket",
			Category:    "Storage:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_S3_BUCKET"),
			Destination: &cfg.S3Bucket,
			Value:       cfg.S3Bucket,
			Usage:       "S3 bucket for stored records; created when missing",
		},
		&cli.StringFlag{
			Name:        "s3-prefix",
			Category:    "Storage:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_S3_PREFIX"),
			Destination: &cfg.S3Prefix,
			Usage:       "Key prefix for stored records",
		},
		&cli.BoolFlag{
			Name:        "s3-path-style",
			Category:    "Storage:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_S3_PATH_STYLE"),
			Destination: &cfg.S3UsePathStyle,
			Usage:       "Use path-style S3 addressing (MinIO, LocalStack)",
		},
		&cli.IntFlag{
			Name:        "store-workers",
			Category:    "Storage:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_STORE_WORKERS"),
			Destination: &cfg.StoreWorkers,
			Value:       cfg.StoreWorkers,
			Usage:       "Async record store worker count",
		},
		&cli.IntFlag{
			Name:        "store-queue-capacity",
			Category:    "Storage:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_STORE_QUEUE_CAPACITY"),
			Destination: &cfg.StoreQueueCapacity,
			Value:       cfg.StoreQueueCapacity,
			Usage:       "Async record store queue capacity; overflow drops the task",
		},

		// ── Encryption ────────────────────────────────────────────
		&cli.BoolFlag{
			Name:        "encryption",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_ENCRYPTION"),
			Destination: &cfg.EncryptionEnabled,
			Value:       cfg.EncryptionEnabled,
			Usage:       "Envelope-encrypt stored payloads",
		},
		&cli.StringFlag{
			Name:        "keywrap",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_KEYWRAP"),
			Destination: &cfg.KeywrapType,
			Value:       cfg.KeywrapType,
			Usage:       "Key-wrapping provider: local, kms, or vault",
		},
		&cli.StringFlag{
			Name:        "local-master-key",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_LOCAL_MASTER_KEY"),
			Destination: &cfg.LocalMasterKey,
			Usage:       "256-bit master key (hex or base64) for the local keywrap provider",
		},
		&cli.StringFlag{
			Name:        "kms-key-id",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_KMS_KEY_ID"),
			Destination: &cfg.KMSKeyID,
			Usage:       "AWS KMS key id or ARN for the kms keywrap provider",
		},
		&cli.StringFlag{
			Name:        "vault-transit-key",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_VAULT_TRANSIT_KEY"),
			Destination: &cfg.VaultTransitKey,
			Usage:       "Vault Transit key name for the vault keywrap provider",
		},
		&cli.DurationFlag{
			Name:        "keywrap-timeout",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_KEYWRAP_TIMEOUT"),
			Destination: &cfg.KeywrapTimeout,
			Value:       cfg.KeywrapTimeout,
			Usage:       "Per-call timeout for remote wrap/unwrap operations",
		},
		&cli.DurationFlag{
			Name:        "dek-cache-ttl",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_DEK_CACHE_TTL"),
			Destination: &cfg.DEKCacheTTL,
			Value:       cfg.DEKCacheTTL,
			Usage:       "TTL for the unwrapped-DEK cache; 0 disables caching",
		},

		// ── Transformation ────────────────────────────────────────
		&cli.BoolFlag{
			Name:        "transform",
			Category:    "Transformation:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_TRANSFORM"),
			Destination: &cfg.TransformEnabled,
			Usage:       "Enable the transformation pipeline consumer",
		},
		&cli.StringFlag{
			Name:        "transform-type",
			Category:    "Transformation:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_TRANSFORM_TYPE"),
			Destination: &cfg.TransformType,
			Value:       cfg.TransformType,
			Usage:       "Transformation applied to input-queue messages, e.g. MT103_TO_MT202",
		},
		&cli.StringFlag{
			Name:        "input-queue",
			Category:    "Transformation:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_INPUT_QUEUE"),
			Destination: &cfg.InputQueue,
			Value:       cfg.InputQueue,
			Usage:       "Queue the pipeline consumes from",
		},
		&cli.StringFlag{
			Name:        "output-queue",
			Category:    "Transformation:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_OUTPUT_QUEUE"),
			Destination: &cfg.OutputQueue,
			Value:       cfg.OutputQueue,
			Usage:       "Queue transformed messages are published to",
		},
		&cli.StringFlag{
			Name:        "dead-letter-queue",
			Category:    "Transformation:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_DEAD_LETTER_QUEUE"),
			Destination: &cfg.DeadLetterQueue,
			Value:       cfg.DeadLetterQueue,
			Usage:       "Queue for messages that exhaust their retries",
		},
		&cli.IntFlag{
			Name:        "retry-max-attempts",
			Category:    "Transformation:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_RETRY_MAX_ATTEMPTS"),
			Destination: &cfg.RetryMaxAttempts,
			Value:       cfg.RetryMaxAttempts,
			Usage:       "Transformation attempts before dead-lettering",
		},
		&cli.DurationFlag{
			Name:        "retry-base-interval",
			Category:    "Transformation:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_RETRY_BASE_INTERVAL"),
			Destination: &cfg.RetryBaseInterval,
			Value:       cfg.RetryBaseInterval,
			Usage:       "Initial retry backoff interval",
		},
		&cli.DurationFlag{
			Name:        "retry-max-interval",
			Category:    "Transformation:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_RETRY_MAX_INTERVAL"),
			Destination: &cfg.RetryMaxInterval,
			Value:       cfg.RetryMaxInterval,
			Usage:       "Retry backoff interval cap",
		},
		&cli.BoolFlag{
			Name:        "dlq-listener",
			Category:    "Transformation:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_DLQ_LISTENER"),
			Destination: &cfg.DLQListenerEnabled,
			Usage:       "Consume and persist dead-letter queue arrivals",
		},
		&cli.Int64Flag{
			Name:        "dlq-warn-threshold",
			Category:    "Transformation:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_DLQ_WARN_THRESHOLD"),
			Destination: &cfg.DLQWarnThreshold,
			Value:       cfg.DLQWarnThreshold,
			Usage:       "Hourly dead-letter arrivals before warn alerts",
		},
		&cli.Int64Flag{
			Name:        "dlq-critical-threshold",
			Category:    "Transformation:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_DLQ_CRITICAL_THRESHOLD"),
			Destination: &cfg.DLQCriticalThreshold,
			Value:       cfg.DLQCriticalThreshold,
			Usage:       "Hourly dead-letter arrivals before critical alerts",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("SOLACE_BRIDGE_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Usage:       "Constant labels added to every metric, key=value comma-separated; values support ${VAR} expansion",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}
