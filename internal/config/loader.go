package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// EnvPrefix is the prefix of environment variable overrides
const EnvPrefix = "PDFM_"

// Load reads configuration from a file and applies environment variable overrides
func Load(configPath string) (*Config, error) {
	return LoadWithEnvFile(configPath, "")
}

// LoadWithEnvFile is Load with a dotenv file read first. Variables already
// present in the environment win over the file.
func LoadWithEnvFile(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	// Start with defaults
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile parses an HCL configuration file
func loadFromFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", path)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	return decodeBody(file.Body, cfg)
}

// decodeBody decodes each block present in body over the matching section of
// cfg, so attributes and blocks left out of the file keep their defaults.
func decodeBody(body hcl.Body, cfg *Config) error {
	sections := map[string]any{
		"fetcher":    &cfg.Fetcher,
		"cache":      &cfg.Cache,
		"validation": &cfg.Validation,
		"storage":    &cfg.Storage,
		"database":   &cfg.Database,
		"server":     &cfg.Server,
		"auth":       &cfg.Auth,
		"logging":    &cfg.Logging,
		"telemetry":  &cfg.Telemetry,
	}

	schema, _ := gohcl.ImpliedBodySchema(cfg)
	content, diags := body.Content(schema)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	seen := make(map[string]bool)
	ctx := evalContext()
	for _, block := range content.Blocks {
		if seen[block.Type] {
			return fmt.Errorf("duplicate %s block at %s", block.Type, block.DefRange)
		}
		seen[block.Type] = true

		if diags := gohcl.DecodeBody(block.Body, ctx, sections[block.Type]); diags.HasErrors() {
			return fmt.Errorf("failed to decode %s block: %s", block.Type, diags.Error())
		}
	}

	return nil
}

// evalContext exposes env() so secrets can stay out of the file, plus a few
// string helpers from the cty standard library
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"env":      envFunc,
			"coalesce": stdlib.CoalesceFunc,
			"lower":    stdlib.LowerFunc,
			"upper":    stdlib.UpperFunc,
		},
	}
}

// envFunc returns the value of an environment variable, or "" when unset
var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return cty.StringVal(os.Getenv(args[0].AsString())), nil
	},
})

// applyEnvOverrides applies environment variable overrides with the PDFM_ prefix
func applyEnvOverrides(cfg *Config) error {
	var errs []string
	e := envReader{errs: &errs}

	// Fetcher configuration
	e.setString("FETCHER_USER_AGENT", &cfg.Fetcher.UserAgent)
	e.setString("FETCHER_API_KEY", &cfg.Fetcher.APIKey)
	e.setString("FETCHER_BEARER_TOKEN", &cfg.Fetcher.BearerToken)
	e.setInt("FETCHER_TIMEOUT_SECONDS", &cfg.Fetcher.TimeoutSeconds)
	e.setInt("FETCHER_MAX_RETRIES", &cfg.Fetcher.MaxRetries)
	e.setInt("FETCHER_BACKOFF_BASE_MS", &cfg.Fetcher.BackoffBaseMs)
	e.setInt("FETCHER_BACKOFF_MAX_SECONDS", &cfg.Fetcher.BackoffMaxSeconds)
	e.setInt("FETCHER_MAX_WORKERS", &cfg.Fetcher.MaxWorkers)
	e.setInt("FETCHER_RATE_LIMIT_PER_MINUTE", &cfg.Fetcher.RateLimitPerMinute)
	e.setBool("FETCHER_COALESCE_IN_FLIGHT", &cfg.Fetcher.CoalesceInFlight)

	// Cache configuration
	e.setString("CACHE_DIR", &cfg.Cache.Dir)
	e.setFloat("CACHE_MAX_SIZE_MB", &cfg.Cache.MaxSizeMB)
	e.setInt("CACHE_TTL_SECONDS", &cfg.Cache.TTLSeconds)
	e.setInt("CACHE_SWEEP_INTERVAL_SECONDS", &cfg.Cache.SweepIntervalSeconds)
	e.setBool("CACHE_CLEANUP_ON_SHUTDOWN", &cfg.Cache.CleanupOnShutdown)

	// Validation configuration
	e.setFloat("VALIDATION_MAX_SIZE_MB", &cfg.Validation.MaxSizeMB)
	e.setInt("VALIDATION_MIN_PAGE_COUNT", &cfg.Validation.MinPageCount)
	e.setBool("VALIDATION_ALLOW_ENCRYPTED", &cfg.Validation.AllowEncrypted)
	e.setList("VALIDATION_ALLOWED_VERSIONS", &cfg.Validation.AllowedVersions)

	// Storage configuration
	e.setString("STORAGE_TYPE", &cfg.Storage.Type)
	e.setString("STORAGE_PREFIX", &cfg.Storage.Prefix)
	e.setString("STORAGE_BUCKET", &cfg.Storage.Bucket)
	e.setString("STORAGE_REGION", &cfg.Storage.Region)
	e.setString("STORAGE_ENDPOINT", &cfg.Storage.Endpoint)
	e.setString("STORAGE_ACCESS_KEY", &cfg.Storage.AccessKey)
	e.setString("STORAGE_SECRET_KEY", &cfg.Storage.SecretKey)
	e.setBool("STORAGE_FORCE_PATH_STYLE", &cfg.Storage.ForcePathStyle)
	e.setString("STORAGE_LOCAL_PATH", &cfg.Storage.LocalPath)

	// Database configuration
	e.setBool("DATABASE_ENABLED", &cfg.Database.Enabled)
	e.setString("DATABASE_PATH", &cfg.Database.Path)

	// Server configuration
	e.setInt("SERVER_PORT", &cfg.Server.Port)
	e.setBool("SERVER_TLS_ENABLED", &cfg.Server.TLSEnabled)
	e.setString("SERVER_TLS_CERT_PATH", &cfg.Server.TLSCertPath)
	e.setString("SERVER_TLS_KEY_PATH", &cfg.Server.TLSKeyPath)
	e.setBool("SERVER_BEHIND_PROXY", &cfg.Server.BehindProxy)
	e.setInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", &cfg.Server.ShutdownTimeoutSeconds)

	// Auth configuration
	e.setString("AUTH_JWT_SECRET", &cfg.Auth.JWTSecret)
	e.setInt("AUTH_JWT_EXPIRATION_HOURS", &cfg.Auth.JWTExpirationHours)
	e.setInt("AUTH_BCRYPT_COST", &cfg.Auth.BCryptCost)
	e.setString("AUTH_ADMIN_USERNAME", &cfg.Auth.AdminUsername)
	e.setString("AUTH_ADMIN_PASSWORD_HASH", &cfg.Auth.AdminPasswordHash)

	// Logging configuration
	e.setString("LOGGING_LEVEL", &cfg.Logging.Level)
	e.setString("LOGGING_FORMAT", &cfg.Logging.Format)
	e.setString("LOGGING_OUTPUT", &cfg.Logging.Output)
	e.setString("LOGGING_FILE_PATH", &cfg.Logging.FilePath)

	// Telemetry configuration
	e.setBool("TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	e.setString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.MetricsPath)

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// envReader copies set PDFM_ variables into config fields and collects
// values that fail to parse
type envReader struct {
	errs *[]string
}

func (e envReader) lookup(name string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || strings.TrimSpace(val) == "" {
		return "", false
	}
	return strings.TrimSpace(val), true
}

func (e envReader) fail(name, val, kind string) {
	*e.errs = append(*e.errs, fmt.Sprintf("%s%s=%q is not a valid %s", EnvPrefix, name, val, kind))
}

func (e envReader) setString(name string, dst *string) {
	if val, ok := e.lookup(name); ok {
		*dst = val
	}
}

func (e envReader) setInt(name string, dst *int) {
	if val, ok := e.lookup(name); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			e.fail(name, val, "integer")
			return
		}
		*dst = n
	}
}

func (e envReader) setFloat(name string, dst *float64) {
	if val, ok := e.lookup(name); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			e.fail(name, val, "number")
			return
		}
		*dst = f
	}
}

func (e envReader) setBool(name string, dst *bool) {
	if val, ok := e.lookup(name); ok {
		*dst = parseBool(val)
	}
}

func (e envReader) setList(name string, dst *[]string) {
	if val, ok := e.lookup(name); ok {
		var items []string
		for _, item := range strings.Split(val, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*dst = items
	}
}

// parseBool parses a boolean value from string (supports: true/false, yes/no, 1/0)
func parseBool(val string) bool {
	val = strings.ToLower(strings.TrimSpace(val))
	return val == "true" || val == "yes" || val == "1"
}
