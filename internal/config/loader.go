package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		// Get tags
		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		// Apply default if not set
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		// Set the field value
		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	validIsolation := map[string]bool{"read_committed": true, "repeatable_read": true, "serializable": true}
	if !validIsolation[strings.ToLower(c.Database.TxIsolation)] {
		errs = append(errs, fmt.Sprintf("DB_TX_ISOLATION (%q) must be one of: read_committed, repeatable_read, serializable",
			c.Database.TxIsolation))
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Import validation
	if c.Import.MaxFileSize <= 0 {
		errs = append(errs, "IMPORT_MAX_FILE_SIZE must be positive")
	}
	if c.Import.MaxConcurrent <= 0 {
		errs = append(errs, "IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.MaxWaitTime <= 0 {
		errs = append(errs, "IMPORT_MAX_WAIT_TIME must be positive")
	}
	if c.Import.Timeout <= 0 {
		errs = append(errs, "IMPORT_TIMEOUT must be positive")
	}
	if c.Import.ListingConcurrency <= 0 {
		errs = append(errs, "IMPORT_LISTING_CONCURRENCY must be positive")
	}
	if c.Import.ChildConcurrency <= 0 {
		errs = append(errs, "IMPORT_CHILD_CONCURRENCY must be positive")
	}
	switch strings.ToLower(c.Import.Isolation) {
	case "per_listing", "per_batch":
	default:
		errs = append(errs, fmt.Sprintf("IMPORT_ISOLATION (%q) must be one of: per_listing, per_batch", c.Import.Isolation))
	}
	if len(strings.TrimSpace(c.Import.DefaultCurrency)) != 3 {
		errs = append(errs, fmt.Sprintf("IMPORT_DEFAULT_CURRENCY (%q) must be a three-letter code", c.Import.DefaultCurrency))
	}

	// Media validation
	if c.Media.DownloadConcurrency <= 0 || c.Media.ProcessConcurrency <= 0 || c.Media.UploadConcurrency <= 0 {
		errs = append(errs, "MEDIA_*_CONCURRENCY values must be positive")
	}
	if c.Media.PersistBatchSize <= 0 {
		errs = append(errs, "MEDIA_PERSIST_BATCH_SIZE must be positive")
	}
	if c.Media.DownloadTimeout <= 0 {
		errs = append(errs, "MEDIA_DOWNLOAD_TIMEOUT must be positive")
	}
	if c.Media.DownloadRetries < 0 {
		errs = append(errs, "MEDIA_DOWNLOAD_RETRIES must be non-negative")
	}
	if c.Media.HostRate < 0 {
		errs = append(errs, "MEDIA_HOST_RATE must be non-negative")
	}
	if c.Media.Quality < 1 || c.Media.Quality > 100 {
		errs = append(errs, fmt.Sprintf("MEDIA_QUALITY (%d) must be 1-100", c.Media.Quality))
	}
	if c.Media.MaxWidth <= 0 {
		errs = append(errs, "MEDIA_MAX_WIDTH must be positive")
	}
	if c.Media.MaxPixels < 0 {
		errs = append(errs, "MEDIA_MAX_PIXELS must be non-negative")
	}
	if c.Media.SmallBytes > c.Media.LargeBytes {
		errs = append(errs, fmt.Sprintf("MEDIA_SMALL_BYTES (%d) must be <= MEDIA_LARGE_BYTES (%d)",
			c.Media.SmallBytes, c.Media.LargeBytes))
	}

	// Storage validation
	switch strings.ToLower(c.Storage.Driver) {
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, "STORAGE_BUCKET is required when STORAGE_DRIVER is s3")
		}
		if (c.Storage.AccessKeyID == "") != (c.Storage.SecretAccessKey == "") {
			errs = append(errs, "STORAGE_ACCESS_KEY_ID and STORAGE_SECRET_ACCESS_KEY must be set together")
		}
	case "local":
		if c.Storage.LocalDir == "" {
			errs = append(errs, "STORAGE_LOCAL_DIR is required when STORAGE_DRIVER is local")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_DRIVER (%q) must be one of: s3, local", c.Storage.Driver))
	}

	// Notify validation
	if c.Notify.QueueURL != "" && c.Notify.RetryAttempts <= 0 {
		errs = append(errs, "NOTIFY_RETRY_ATTEMPTS must be positive when NOTIFY_QUEUE_URL is set")
	}
	if c.Notify.EndBuffer < 0 {
		errs = append(errs, "NOTIFY_END_BUFFER must be non-negative")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.ImportLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_IMPORT must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and credentials are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d, TxIsolation: %q}, ",
		c.Database.MaxConns, c.Database.MinConns, c.Database.TxIsolation))
	b.WriteString(fmt.Sprintf("Import: {MaxFileSize: %d, MaxConcurrent: %d, Isolation: %q, ToleratePartial: %v}, ",
		c.Import.MaxFileSize, c.Import.MaxConcurrent, c.Import.Isolation, c.Import.ToleratePartial))
	b.WriteString(fmt.Sprintf("Storage: {Driver: %q, Bucket: %q, Credentials: %s}, ",
		c.Storage.Driver, c.Storage.Bucket, masked(c.Storage.AccessKeyID)))
	b.WriteString(fmt.Sprintf("Redis: {URL: %s}, ", masked(c.Redis.URL)))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func masked(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
