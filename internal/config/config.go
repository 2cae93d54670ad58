package config

import (
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Fetcher    FetcherConfig    `hcl:"fetcher,block"`
	Cache      CacheConfig      `hcl:"cache,block"`
	Validation ValidationConfig `hcl:"validation,block"`
	Storage    StorageConfig    `hcl:"storage,block"`
	Database   DatabaseConfig   `hcl:"database,block"`
	Server     ServerConfig     `hcl:"server,block"`
	Auth       AuthConfig       `hcl:"auth,block"`
	Logging    LoggingConfig    `hcl:"logging,block"`
	Telemetry  TelemetryConfig  `hcl:"telemetry,block"`
}

// FetcherConfig contains outbound HTTP settings for the downloader
type FetcherConfig struct {
	UserAgent          string `hcl:"user_agent,optional"`
	APIKey             string `hcl:"api_key,optional"`
	BearerToken        string `hcl:"bearer_token,optional"`
	TimeoutSeconds     int    `hcl:"timeout_seconds,optional"`
	MaxRetries         int    `hcl:"max_retries,optional"`
	BackoffBaseMs      int    `hcl:"backoff_base_ms,optional"`
	BackoffMaxSeconds  int    `hcl:"backoff_max_seconds,optional"`
	MaxWorkers         int    `hcl:"max_workers,optional"`
	RateLimitPerMinute int    `hcl:"rate_limit_per_minute,optional"` // 0 = unlimited
	CoalesceInFlight   bool   `hcl:"coalesce_in_flight,optional"`
}

// CacheConfig contains local PDF cache settings
type CacheConfig struct {
	Dir                  string  `hcl:"dir,optional"`
	MaxSizeMB            float64 `hcl:"max_size_mb,optional"`
	TTLSeconds           int     `hcl:"ttl_seconds,optional"`
	SweepIntervalSeconds int     `hcl:"sweep_interval_seconds,optional"` // 0 = no background sweep
	CleanupOnShutdown    bool    `hcl:"cleanup_on_shutdown,optional"`
}

// ValidationConfig contains the PDF acceptance policy
type ValidationConfig struct {
	MaxSizeMB       float64  `hcl:"max_size_mb,optional"`
	MinPageCount    int      `hcl:"min_page_count,optional"`
	AllowEncrypted  bool     `hcl:"allow_encrypted,optional"`
	AllowedVersions []string `hcl:"allowed_versions,optional"`
}

// StorageConfig contains archive storage settings
type StorageConfig struct {
	Type           string `hcl:"type,optional"` // "", "s3" or "local"; empty disables archiving
	Prefix         string `hcl:"prefix,optional"`
	Bucket         string `hcl:"bucket,optional"`
	Region         string `hcl:"region,optional"`
	Endpoint       string `hcl:"endpoint,optional"`
	AccessKey      string `hcl:"access_key,optional"`
	SecretKey      string `hcl:"secret_key,optional"`
	ForcePathStyle bool   `hcl:"force_path_style,optional"`
	LocalPath      string `hcl:"local_path,optional"`
}

// DatabaseConfig contains download history settings
type DatabaseConfig struct {
	Enabled bool   `hcl:"enabled,optional"`
	Path    string `hcl:"path,optional"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                   int    `hcl:"port,optional"`
	TLSEnabled             bool   `hcl:"tls_enabled,optional"`
	TLSCertPath            string `hcl:"tls_cert_path,optional"`
	TLSKeyPath             string `hcl:"tls_key_path,optional"`
	BehindProxy            bool   `hcl:"behind_proxy,optional"`
	ShutdownTimeoutSeconds int    `hcl:"shutdown_timeout_seconds,optional"`
}

// AuthConfig contains admin authentication settings
type AuthConfig struct {
	JWTSecret          string `hcl:"jwt_secret,optional"`
	JWTExpirationHours int    `hcl:"jwt_expiration_hours,optional"`
	BCryptCost         int    `hcl:"bcrypt_cost,optional"`
	AdminUsername      string `hcl:"admin_username,optional"`
	AdminPasswordHash  string `hcl:"admin_password_hash,optional"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level    string `hcl:"level,optional"`
	Format   string `hcl:"format,optional"`
	Output   string `hcl:"output,optional"`
	FilePath string `hcl:"file_path,optional"`
}

// TelemetryConfig contains observability settings
type TelemetryConfig struct {
	Enabled     bool   `hcl:"enabled,optional"`
	MetricsPath string `hcl:"metrics_path,optional"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Fetcher: FetcherConfig{
			UserAgent:          "",
			TimeoutSeconds:     30,
			MaxRetries:         3,
			BackoffBaseMs:      1000,
			BackoffMaxSeconds:  60,
			MaxWorkers:         3,
			RateLimitPerMinute: 0,
			CoalesceInFlight:   false,
		},
		Cache: CacheConfig{
			Dir:                  "/var/cache/pdf-mirror",
			MaxSizeMB:            500,
			TTLSeconds:           86400,
			SweepIntervalSeconds: 0,
			CleanupOnShutdown:    false,
		},
		Validation: ValidationConfig{
			MaxSizeMB:       50,
			MinPageCount:    1,
			AllowEncrypted:  false,
			AllowedVersions: []string{"1.0", "1.1", "1.2", "1.3", "1.4", "1.5", "1.6", "1.7", "2.0"},
		},
		Storage: StorageConfig{
			Type:   "",
			Prefix: "guides",
			Region: "us-east-1",
		},
		Database: DatabaseConfig{
			Enabled: true,
			Path:    "/var/lib/pdf-mirror/history.db",
		},
		Server: ServerConfig{
			Port:                   8080,
			ShutdownTimeoutSeconds: 30,
		},
		Auth: AuthConfig{
			JWTExpirationHours: 8,
			BCryptCost:         12,
			JWTSecret:          "", // Must be set via environment variable or config file
			AdminUsername:      "admin",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			Output:   "stderr",
			FilePath: "",
		},
		Telemetry: TelemetryConfig{
			Enabled:     true,
			MetricsPath: "/metrics",
		},
	}
}

// GetTimeout returns the per-attempt request timeout as a duration
func (c *FetcherConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetBackoffBase returns the first retry delay as a duration
func (c *FetcherConfig) GetBackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// GetBackoffMax returns the retry delay cap as a duration
func (c *FetcherConfig) GetBackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxSeconds) * time.Second
}

// GetCacheTTL returns the cache TTL as a duration
func (c *CacheConfig) GetCacheTTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// GetSweepInterval returns the background sweep interval as a duration
func (c *CacheConfig) GetSweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// GetJWTExpiration returns the JWT expiration as a duration
func (c *AuthConfig) GetJWTExpiration() time.Duration {
	return time.Duration(c.JWTExpirationHours) * time.Hour
}

// GetShutdownTimeout returns the graceful shutdown timeout as a duration
func (c *ServerConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// ArchiveEnabled reports whether validated PDFs are archived to storage
func (c *StorageConfig) ArchiveEnabled() bool {
	return c.Type != ""
}
