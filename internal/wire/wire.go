// Package wire provides dependency injection for the cmscope application.
// It creates singleton services with lazy initialization.
package wire

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/cmscope/internal/adapters/local"
	redisadapter "github.com/example/cmscope/internal/adapters/redis"
	"github.com/example/cmscope/internal/adapters/sqlite"
	"github.com/example/cmscope/internal/app"
	"github.com/example/cmscope/internal/cache"
	"github.com/example/cmscope/internal/config"
	"github.com/example/cmscope/internal/db"
	"github.com/example/cmscope/internal/lock"
	"github.com/example/cmscope/internal/notification"
	"github.com/example/cmscope/internal/ports/primary"
	"github.com/example/cmscope/internal/ports/secondary"
	"github.com/example/cmscope/internal/scope"
)

// Components holds every wired dependency of one process.
type Components struct {
	Config      *config.Config
	Logger      *slog.Logger
	DB          *sql.DB
	Provider    *scope.Provider
	Aggregator  *notification.Aggregator
	Locks       *lock.Registry
	Broadcaster secondary.CacheBroadcaster
	Refresher   *app.CacheRefresher

	ContentService primary.ContentService
	LogService     primary.LogService

	redis *redisadapter.Connection
}

var (
	cfg        = config.Default()
	logger     = slog.Default()
	components *Components
	initErr    error
	once       sync.Once
)

// Configure sets the configuration and logger used by the singleton.
// It must be called before the first call to Get.
func Configure(c *config.Config, l *slog.Logger) {
	if c != nil {
		cfg = c
	}
	if l != nil {
		logger = l
	}
}

// Get returns the singleton components, building them on first use.
func Get() (*Components, error) {
	once.Do(func() {
		components, initErr = Build(context.Background(), cfg, logger)
	})
	return components, initErr
}

// ContentService returns the singleton ContentService instance.
func ContentService() (primary.ContentService, error) {
	c, err := Get()
	if err != nil {
		return nil, err
	}
	return c.ContentService, nil
}

// LogService returns the singleton LogService instance.
func LogService() (primary.LogService, error) {
	c, err := Get()
	if err != nil {
		return nil, err
	}
	return c.LogService, nil
}

// Build opens the database, brings its schema up to date and wires every service.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mode, err := cache.ParseMode(cfg.Cache.RepositoryMode)
	if err != nil {
		return nil, err
	}

	path := cfg.DatabasePath
	if path == "" {
		if path, err = db.DefaultPath(); err != nil {
			return nil, err
		}
	}
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}

	c := &Components{
		Config:     cfg,
		Logger:     logger,
		DB:         database,
		Aggregator: notification.NewAggregator(logger),
		Locks:      lock.NewRegistry(),
	}
	caches := cache.NewAppCaches()

	opts := []scope.ProviderOption{
		scope.WithLogger(logger),
		scope.WithLockRegistry(c.Locks),
		scope.WithLockTimeouts(cfg.Locks.ReadTimeout.Std(), cfg.Locks.WriteTimeout.Std()),
		scope.WithAppCaches(caches),
		scope.WithDefaultCacheMode(mode),
	}

	if cfg.Redis.Enabled {
		conn, err := redisadapter.Open(ctx, redisadapter.Options{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: redisadapter.DefaultOptions().KeyPrefix,
		})
		if err != nil {
			database.Close()
			return nil, err
		}
		c.redis = conn
		opts = append(opts, scope.WithDistributedLocking(redisadapter.NewLockingMechanism(conn, cfg.Redis.LockTTL.Std(), logger)))
		c.Broadcaster = redisadapter.NewBroadcaster(conn, cfg.Redis.Channel, logger)
		logger.Debug("redis enabled", "address", cfg.Redis.Address)
	} else {
		c.Broadcaster = local.NewBroadcaster()
	}

	c.Provider = scope.NewProvider(sqlite.NewDatabaseFactory(database), c.Aggregator, opts...)

	if err := db.Migrate(ctx, c.Provider, logger); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// Create repository adapters (secondary ports)
	contentRepo := sqlite.NewContentRepository(c.Provider, caches.Isolated)
	auditRepo := sqlite.NewAuditRepository(c.Provider)
	logWriter := sqlite.NewLogWriterAdapter(auditRepo)

	// Create services (primary ports implementation)
	c.ContentService = app.NewContentService(c.Provider, contentRepo, logWriter)
	c.LogService = app.NewLogService(c.Provider, auditRepo)

	c.Refresher = app.NewCacheRefresher(c.Provider, c.Broadcaster, logger)
	c.Refresher.Register(c.Aggregator)

	return c, nil
}

// PingRedis checks the Redis connection when Redis is enabled.
func (c *Components) PingRedis(ctx context.Context) error {
	if c.redis == nil {
		return fmt.Errorf("redis is not enabled")
	}
	return c.redis.Ping(ctx)
}

// Close releases the database and the Redis connection.
func (c *Components) Close() error {
	var errs []error
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}

// Close releases the singleton if it was built.
func Close() error {
	if components == nil {
		return nil
	}
	return components.Close()
}
