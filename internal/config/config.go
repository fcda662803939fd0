// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Media    MediaConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Notify   NotifyConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 60s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"60s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// TxIsolation is the isolation level of import transactions:
	// read_committed, repeatable_read or serializable (default: read_committed)
	TxIsolation string `env:"DB_TX_ISOLATION" default:"read_committed"`

	// AutoMigrate applies the bundled schema on startup (default: false)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"false"`
}

// ImportConfig holds spreadsheet import settings.
type ImportConfig struct {
	// MaxFileSize is the maximum size of one uploaded spreadsheet in bytes (default: 25MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"26214400"`

	// MaxConcurrent is the maximum number of imports running at once (default: 3)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"3"`

	// MaxWaitTime is how long an import waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds one whole import (default: 30m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"30m"`

	// ListingConcurrency bounds listings processed at once (default: 5)
	ListingConcurrency int `env:"IMPORT_LISTING_CONCURRENCY" default:"5"`

	// ChildConcurrency bounds child rows assembled at once (default: 20)
	ChildConcurrency int `env:"IMPORT_CHILD_CONCURRENCY" default:"20"`

	// Isolation is per_listing or per_batch (default: per_listing)
	Isolation string `env:"IMPORT_ISOLATION" default:"per_listing"`

	// ToleratePartial commits good listings when others fail (default: false)
	ToleratePartial bool `env:"IMPORT_TOLERATE_PARTIAL" default:"false"`

	// DefaultCurrency applies when a price cell names none (default: USD)
	DefaultCurrency string `env:"IMPORT_DEFAULT_CURRENCY" default:"USD"`
}

// MediaConfig holds image pipeline settings.
type MediaConfig struct {
	DownloadConcurrency int `env:"MEDIA_DOWNLOAD_CONCURRENCY" default:"15"`
	ProcessConcurrency  int `env:"MEDIA_PROCESS_CONCURRENCY" default:"10"`
	UploadConcurrency   int `env:"MEDIA_UPLOAD_CONCURRENCY" default:"20"`
	PersistBatchSize    int `env:"MEDIA_PERSIST_BATCH_SIZE" default:"50"`

	// DownloadTimeout bounds one HTTP attempt (default: 30s)
	DownloadTimeout time.Duration `env:"MEDIA_DOWNLOAD_TIMEOUT" default:"30s"`

	// MaxDownloadBytes rejects larger images (default: 25MB)
	MaxDownloadBytes int64 `env:"MEDIA_MAX_DOWNLOAD_BYTES" default:"26214400"`

	// DownloadRetries is the number of retries after a transient failure (default: 2)
	DownloadRetries int `env:"MEDIA_DOWNLOAD_RETRIES" default:"2"`

	// DownloadBackoff is the first retry delay, doubled per attempt (default: 500ms)
	DownloadBackoff time.Duration `env:"MEDIA_DOWNLOAD_BACKOFF" default:"500ms"`

	// HostRate paces downloads per host in requests per second; 0 disables (default: 20)
	HostRate  float64 `env:"MEDIA_HOST_RATE" default:"20"`
	HostBurst int     `env:"MEDIA_HOST_BURST" default:"10"`

	MaxWidth int `env:"MEDIA_MAX_WIDTH" default:"1200"`
	Quality  int `env:"MEDIA_QUALITY" default:"75"`

	// SmallBytes and LargeBytes pick the output codec: below SmallBytes WebP,
	// above LargeBytes JPEG, AVIF in between.
	SmallBytes  int64         `env:"MEDIA_SMALL_BYTES" default:"204800"`
	LargeBytes  int64         `env:"MEDIA_LARGE_BYTES" default:"8388608"`
	AVIFTimeout time.Duration `env:"MEDIA_AVIF_TIMEOUT" default:"10s"`

	// MaxPixels drops images whose declared dimensions exceed it before decoding (default: 50MP)
	MaxPixels int64 `env:"MEDIA_MAX_PIXELS" default:"50000000"`

	// Compress disables re-encoding when false; originals are stored as is (default: true)
	Compress bool `env:"MEDIA_COMPRESS" default:"true"`
}

// StorageConfig holds object storage settings.
type StorageConfig struct {
	// Driver is s3 or local (default: local)
	Driver string `env:"STORAGE_DRIVER" default:"local"`

	Bucket string `env:"STORAGE_BUCKET" envAlt:"S3_BUCKET"`
	Region string `env:"STORAGE_REGION" envAlt:"AWS_REGION" default:"us-east-1"`

	// Endpoint overrides the S3 endpoint, e.g. LocalStack or MinIO
	Endpoint string `env:"STORAGE_ENDPOINT" envAlt:"AWS_ENDPOINT_URL"`

	// UsePathStyle addresses buckets by path instead of subdomain (default: false)
	UsePathStyle bool `env:"STORAGE_USE_PATH_STYLE" default:"false"`

	// AccessKeyID and SecretAccessKey are optional static credentials. When
	// unset the default AWS credential chain is used.
	AccessKeyID     string `env:"STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"STORAGE_SECRET_ACCESS_KEY"`

	// PublicBaseURL prefixes object keys to build public URLs
	PublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL"`

	// LocalDir is the root directory of the local driver (default: ./data/objects)
	LocalDir string `env:"STORAGE_LOCAL_DIR" default:"./data/objects"`
}

// RedisConfig holds the import status store settings.
type RedisConfig struct {
	// URL is a redis:// connection string; empty keeps status in memory
	URL string `env:"REDIS_URL"`

	// StatusTTL is how long finished import status is kept (default: 24h)
	StatusTTL time.Duration `env:"REDIS_STATUS_TTL" default:"24h"`
}

// NotifyConfig holds auction-end scheduling settings.
type NotifyConfig struct {
	// QueueURL is the SQS queue that receives auction-end messages; empty disables
	QueueURL string `env:"NOTIFY_QUEUE_URL"`

	Region   string `env:"NOTIFY_REGION" envAlt:"AWS_REGION" default:"us-east-1"`
	Endpoint string `env:"NOTIFY_ENDPOINT"`

	// EndBuffer is added to an auction's end time before it fires (default: 5s)
	EndBuffer time.Duration `env:"NOTIFY_END_BUFFER" default:"5s"`

	// TargetFunction names the function that closes the auction
	TargetFunction string `env:"NOTIFY_TARGET_FUNCTION" default:"close-auction"`

	// RetryAttempts and RetryBackoff configure the SQS client retryer; the
	// backoff is the cap on its jittered delay
	RetryAttempts int           `env:"NOTIFY_RETRY_ATTEMPTS" default:"3"`
	RetryBackoff  time.Duration `env:"NOTIFY_RETRY_BACKOFF" default:"1s"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for import endpoints (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects API requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
