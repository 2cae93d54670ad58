package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ned1313/pdf-mirror/internal/cache"
	"github.com/ned1313/pdf-mirror/internal/config"
	"github.com/ned1313/pdf-mirror/internal/database"
	"github.com/ned1313/pdf-mirror/internal/downloader"
	"github.com/ned1313/pdf-mirror/internal/logging"
	"github.com/ned1313/pdf-mirror/internal/metrics"
	"github.com/ned1313/pdf-mirror/internal/pdf"
	"github.com/ned1313/pdf-mirror/internal/storage"
)

// app holds the components shared by the commands
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	logCloser  io.Closer
	metrics    *metrics.Metrics
	db         *database.DB
	store      storage.Storage
	cache      *cache.Manager
	validator  *pdf.Validator
	downloader *downloader.Downloader
}

type appOptions struct {
	// metrics registers Prometheus collectors on the default registry
	metrics bool

	// sweep starts the cache's background expiry sweep
	sweep bool
}

// newApp wires logging, history, archive storage, cache, validator and
// downloader from cfg. The caller must call close.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg}
	if err := a.init(ctx, opts); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, opts appOptions) error {
	cfg := a.cfg

	var err error
	a.logger, a.logCloser, err = logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	slog.SetDefault(a.logger)

	if opts.metrics {
		a.metrics = metrics.New()
	}

	if cfg.Database.Enabled {
		a.db, err = database.NewWithLogger(cfg.Database.Path, a.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	a.store, err = storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize archive storage: %w", err)
	}

	cacheCfg := cache.Config{
		Dir:        cfg.Cache.Dir,
		MaxSizeMB:  cfg.Cache.MaxSizeMB,
		DefaultTTL: cfg.Cache.GetCacheTTL(),
		Logger:     a.logger,
	}
	if opts.sweep {
		cacheCfg.SweepInterval = cfg.Cache.GetSweepInterval()
	}
	if a.metrics != nil {
		cacheCfg.Observer = a.metrics
	}
	a.cache, err = cache.New(cacheCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	a.validator = pdf.NewValidator(policyFromConfig(cfg.Validation))
	a.downloader = downloader.New(a.cache, a.validator, a.downloaderOptions())

	return nil
}

func (a *app) downloaderOptions() downloader.Options {
	f := a.cfg.Fetcher
	opts := downloader.Options{
		UserAgent:          f.UserAgent,
		APIKey:             f.APIKey,
		BearerToken:        f.BearerToken,
		RequestTimeout:     f.GetTimeout(),
		MaxRetries:         f.MaxRetries,
		BackoffBase:        f.GetBackoffBase(),
		BackoffMax:         f.GetBackoffMax(),
		MaxDownloadSizeMB:  a.cfg.Validation.MaxSizeMB,
		DefaultTTL:         a.cfg.Cache.GetCacheTTL(),
		MaxWorkers:         f.MaxWorkers,
		RateLimitPerMinute: f.RateLimitPerMinute,
		CoalesceInFlight:   f.CoalesceInFlight,
		Logger:             a.logger,
		ArchivePrefix:      a.cfg.Storage.Prefix,
	}
	// A configured zero means no retries; the downloader reads zero as "default"
	if f.MaxRetries == 0 {
		opts.MaxRetries = downloader.NoRetries
	}
	if a.metrics != nil {
		opts.Metrics = a.metrics
	}
	if a.db != nil {
		opts.History = database.NewHistoryRepository(a.db)
	}
	if a.store != nil {
		opts.Archive = a.store
	}
	return opts
}

func policyFromConfig(cfg config.ValidationConfig) pdf.Policy {
	return pdf.Policy{
		MaxSizeMB:       cfg.MaxSizeMB,
		MinPageCount:    cfg.MinPageCount,
		AllowEncrypted:  cfg.AllowEncrypted,
		AllowedVersions: cfg.AllowedVersions,
	}
}

// close releases every component in reverse order of creation
func (a *app) close() error {
	var errs []error
	if a.cache != nil {
		if err := a.cache.Shutdown(a.cfg.Cache.CleanupOnShutdown); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
