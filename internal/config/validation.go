package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var versionPattern = regexp.MustCompile(`^\d\.\d$`)

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	if err := validateFetcher(&cfg.Fetcher); err != nil {
		return fmt.Errorf("fetcher config: %w", err)
	}

	if err := validateCache(&cfg.Cache); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := validateValidation(&cfg.Validation); err != nil {
		return fmt.Errorf("validation config: %w", err)
	}

	if err := validateStorage(&cfg.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := validateDatabase(&cfg.Database); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateAuth(&cfg.Auth); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := validateTelemetry(&cfg.Telemetry); err != nil {
		return fmt.Errorf("telemetry config: %w", err)
	}

	return nil
}

func validateFetcher(cfg *FetcherConfig) error {
	if cfg.TimeoutSeconds < 1 {
		return fmt.Errorf("timeout_seconds must be at least 1")
	}

	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	if cfg.BackoffBaseMs < 0 {
		return fmt.Errorf("backoff_base_ms cannot be negative")
	}

	if cfg.BackoffMaxSeconds < 0 {
		return fmt.Errorf("backoff_max_seconds cannot be negative")
	}

	if cfg.BackoffMaxSeconds > 0 && cfg.GetBackoffBase() > cfg.GetBackoffMax() {
		return fmt.Errorf("backoff_base_ms cannot exceed backoff_max_seconds")
	}

	if cfg.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1")
	}

	if cfg.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate_limit_per_minute cannot be negative")
	}

	return nil
}

func validateCache(cfg *CacheConfig) error {
	if cfg.Dir == "" {
		return fmt.Errorf("dir is required")
	}

	if cfg.MaxSizeMB <= 0 {
		return fmt.Errorf("max_size_mb must be positive")
	}

	if cfg.TTLSeconds < 0 {
		return fmt.Errorf("ttl_seconds cannot be negative")
	}

	if cfg.SweepIntervalSeconds < 0 {
		return fmt.Errorf("sweep_interval_seconds cannot be negative")
	}

	return nil
}

func validateValidation(cfg *ValidationConfig) error {
	if cfg.MaxSizeMB <= 0 {
		return fmt.Errorf("max_size_mb must be positive")
	}

	if cfg.MinPageCount < 0 {
		return fmt.Errorf("min_page_count cannot be negative")
	}

	for _, v := range cfg.AllowedVersions {
		if !versionPattern.MatchString(v) {
			return fmt.Errorf("allowed_versions entry %q is not a <major>.<minor> version", v)
		}
	}

	return nil
}

func validateStorage(cfg *StorageConfig) error {
	if cfg.Type == "" {
		return nil
	}

	validTypes := []string{"s3", "local"}
	if !contains(validTypes, cfg.Type) {
		return fmt.Errorf("storage type must be one of %v, got %s", validTypes, cfg.Type)
	}

	switch strings.ToLower(cfg.Type) {
	case "s3":
		if cfg.Bucket == "" {
			return fmt.Errorf("bucket name is required")
		}
		if cfg.Region == "" && cfg.Endpoint == "" {
			return fmt.Errorf("either region or endpoint must be specified for S3 storage")
		}
		if (cfg.AccessKey == "") != (cfg.SecretKey == "") {
			return fmt.Errorf("access_key and secret_key must be set together")
		}
	case "local":
		if cfg.LocalPath == "" {
			return fmt.Errorf("local_path is required for local storage")
		}
	}

	return nil
}

func validateDatabase(cfg *DatabaseConfig) error {
	if cfg.Enabled && cfg.Path == "" {
		return fmt.Errorf("database path is required")
	}

	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}

	if cfg.TLSEnabled {
		if cfg.TLSCertPath == "" {
			return fmt.Errorf("tls_cert_path is required when TLS is enabled")
		}
		if cfg.TLSKeyPath == "" {
			return fmt.Errorf("tls_key_path is required when TLS is enabled")
		}
		if _, err := os.Stat(cfg.TLSCertPath); os.IsNotExist(err) {
			return fmt.Errorf("tls_cert_path file not found: %s", cfg.TLSCertPath)
		}
		if _, err := os.Stat(cfg.TLSKeyPath); os.IsNotExist(err) {
			return fmt.Errorf("tls_key_path file not found: %s", cfg.TLSKeyPath)
		}
	}

	if cfg.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("shutdown_timeout_seconds cannot be negative")
	}

	return nil
}

func validateAuth(cfg *AuthConfig) error {
	if cfg.JWTExpirationHours < 1 {
		return fmt.Errorf("jwt_expiration_hours must be at least 1")
	}

	if cfg.BCryptCost < 4 || cfg.BCryptCost > 31 {
		return fmt.Errorf("bcrypt_cost must be between 4 and 31, got %d", cfg.BCryptCost)
	}

	if cfg.AdminPasswordHash != "" && !strings.HasPrefix(cfg.AdminPasswordHash, "$2") {
		return fmt.Errorf("admin_password_hash must be a bcrypt hash")
	}

	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.Level) {
		return fmt.Errorf("logging level must be one of %v, got %s", validLevels, cfg.Level)
	}

	validFormats := []string{"text", "json"}
	if !contains(validFormats, cfg.Format) {
		return fmt.Errorf("logging format must be one of %v, got %s", validFormats, cfg.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file", "both"}
	if !contains(validOutputs, cfg.Output) {
		return fmt.Errorf("logging output must be one of %v, got %s", validOutputs, cfg.Output)
	}

	if (cfg.Output == "file" || cfg.Output == "both") && cfg.FilePath == "" {
		return fmt.Errorf("file_path is required when output is 'file' or 'both'")
	}

	return nil
}

func validateTelemetry(cfg *TelemetryConfig) error {
	if cfg.Enabled && !strings.HasPrefix(cfg.MetricsPath, "/") {
		return fmt.Errorf("metrics_path must start with /, got %q", cfg.MetricsPath)
	}

	return nil
}

// contains checks if a string slice contains a value
func contains(slice []string, val string) bool {
	val = strings.ToLower(val)
	for _, item := range slice {
		if strings.ToLower(item) == val {
			return true
		}
	}
	return false
}
