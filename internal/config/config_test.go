package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pdf-mirror.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30, cfg.Fetcher.TimeoutSeconds)
	assert.Equal(t, 3, cfg.Fetcher.MaxRetries)
	assert.Equal(t, time.Second, cfg.Fetcher.GetBackoffBase())
	assert.Equal(t, time.Minute, cfg.Fetcher.GetBackoffMax())
	assert.Equal(t, 3, cfg.Fetcher.MaxWorkers)
	assert.Equal(t, 500.0, cfg.Cache.MaxSizeMB)
	assert.Equal(t, 24*time.Hour, cfg.Cache.GetCacheTTL())
	assert.Equal(t, 50.0, cfg.Validation.MaxSizeMB)
	assert.Equal(t, 1, cfg.Validation.MinPageCount)
	assert.False(t, cfg.Validation.AllowEncrypted)
	assert.Contains(t, cfg.Validation.AllowedVersions, "2.0")
	assert.False(t, cfg.Storage.ArchiveEnabled())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Auth.JWTExpirationHours)
	assert.Equal(t, 12, cfg.Auth.BCryptCost)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, Validate(cfg))
}

func TestLoadFromFile(t *testing.T) {
	configPath := writeConfig(t, `
fetcher {
  user_agent  = "guides-bot/2"
  max_retries = 5
  backoff_base_ms = 250
}

cache {
  dir         = "/tmp/pdf-cache"
  max_size_mb = 128.5
  ttl_seconds = 7200
}

validation {
  min_page_count   = 2
  allow_encrypted  = true
  allowed_versions = ["1.4", "1.7"]
}

storage {
  type       = "local"
  local_path = "/tmp/archive"
}

logging {
  level  = "debug"
  format = "json"
}
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "guides-bot/2", cfg.Fetcher.UserAgent)
	assert.Equal(t, 5, cfg.Fetcher.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Fetcher.GetBackoffBase())
	assert.Equal(t, 30, cfg.Fetcher.TimeoutSeconds, "unset attributes keep defaults")
	assert.Equal(t, "/tmp/pdf-cache", cfg.Cache.Dir)
	assert.Equal(t, 128.5, cfg.Cache.MaxSizeMB)
	assert.Equal(t, 2*time.Hour, cfg.Cache.GetCacheTTL())
	assert.Equal(t, 2, cfg.Validation.MinPageCount)
	assert.True(t, cfg.Validation.AllowEncrypted)
	assert.Equal(t, []string{"1.4", "1.7"}, cfg.Validation.AllowedVersions)
	assert.True(t, cfg.Storage.ArchiveEnabled())
	assert.Equal(t, "guides", cfg.Storage.Prefix)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Blocks missing from the file keep their defaults
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 12, cfg.Auth.BCryptCost)
}

func TestLoadFromFile_EnvFunction(t *testing.T) {
	t.Setenv("GUIDES_TOKEN", "s3cr3t")

	configPath := writeConfig(t, `
fetcher {
  bearer_token = env("GUIDES_TOKEN")
  api_key      = coalesce(env("GUIDES_API_KEY_UNSET"), "fallback-key")
  user_agent   = upper("agent")
}
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", cfg.Fetcher.BearerToken)
	assert.Equal(t, "fallback-key", cfg.Fetcher.APIKey)
	assert.Equal(t, "AGENT", cfg.Fetcher.UserAgent)
}

func TestLoadFromFile_Errors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		errorMsg string
	}{
		{
			name:     "syntax error",
			content:  "cache {\n  dir = \n}\n",
			errorMsg: "failed to parse HCL file",
		},
		{
			name:     "unknown block",
			content:  "modules {\n}\n",
			errorMsg: "failed to decode HCL",
		},
		{
			name:     "unknown attribute",
			content:  "cache {\n  disk_size_gb = 4\n}\n",
			errorMsg: "failed to decode cache block",
		},
		{
			name:     "duplicate block",
			content:  "cache {\n}\ncache {\n}\n",
			errorMsg: "duplicate cache block",
		},
		{
			name:     "invalid value",
			content:  "fetcher {\n  max_workers = 0\n}\n",
			errorMsg: "max_workers must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.hcl")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PDFM_SERVER_PORT", "3000")
	t.Setenv("PDFM_FETCHER_API_KEY", "key-123")
	t.Setenv("PDFM_FETCHER_COALESCE_IN_FLIGHT", "yes")
	t.Setenv("PDFM_CACHE_MAX_SIZE_MB", "64.5")
	t.Setenv("PDFM_VALIDATION_ALLOWED_VERSIONS", "1.4, 1.5,,2.0")
	t.Setenv("PDFM_AUTH_JWT_EXPIRATION_HOURS", "12")
	t.Setenv("PDFM_LOGGING_LEVEL", "error")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "key-123", cfg.Fetcher.APIKey)
	assert.True(t, cfg.Fetcher.CoalesceInFlight)
	assert.Equal(t, 64.5, cfg.Cache.MaxSizeMB)
	assert.Equal(t, []string{"1.4", "1.5", "2.0"}, cfg.Validation.AllowedVersions)
	assert.Equal(t, 12, cfg.Auth.JWTExpirationHours)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestEnvOverrides_OverFile(t *testing.T) {
	configPath := writeConfig(t, "server {\n  port = 9090\n}\n")
	t.Setenv("PDFM_SERVER_PORT", "9191")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestEnvOverrides_InvalidNumber(t *testing.T) {
	t.Setenv("PDFM_FETCHER_MAX_RETRIES", "lots")
	t.Setenv("PDFM_CACHE_MAX_SIZE_MB", "big")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PDFM_FETCHER_MAX_RETRIES")
	assert.Contains(t, err.Error(), "PDFM_CACHE_MAX_SIZE_MB")
}

func TestLoadWithEnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("PDFM_FETCHER_BEARER_TOKEN=from-dotenv\nPDFM_SERVER_PORT=7000\n"), 0644))

	// Variables already set take precedence over the dotenv file
	t.Setenv("PDFM_SERVER_PORT", "7100")
	t.Cleanup(func() { os.Unsetenv("PDFM_FETCHER_BEARER_TOKEN") })

	cfg, err := LoadWithEnvFile("", envPath)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Fetcher.BearerToken)
	assert.Equal(t, 7100, cfg.Server.Port)

	_, err = LoadWithEnvFile("", filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"true", true},
		{"True", true},
		{"TRUE", true},
		{"yes", true},
		{"Yes", true},
		{"1", true},
		{"false", false},
		{"False", false},
		{"no", false},
		{"0", false},
		{"", false},
		{"invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseBool(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
