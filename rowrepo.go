// Package rowrepo wires configuration, logging, a SQL executor and an optional
// result cache into generic entity repositories.
package rowrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/ammar0144/rowrepo/pkg/bundb"
	"github.com/ammar0144/rowrepo/pkg/cache"
	"github.com/ammar0144/rowrepo/pkg/config"
	"github.com/ammar0144/rowrepo/pkg/db"
	"github.com/ammar0144/rowrepo/pkg/logging"
	"github.com/ammar0144/rowrepo/pkg/redis"
	"github.com/ammar0144/rowrepo/pkg/repository"
)

// Shorthands for the types most callers need
type (
	Entity     = repository.Entity
	BaseEntity = repository.BaseEntity
	Option     = repository.Option
	Row        = db.Row
	Criteria   = db.Criteria
	Order      = db.Order
)

// Runtime holds the shared infrastructure repositories are built on
type Runtime struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Executor repository.Executor
	Cache    repository.ResultCache
	Events   *repository.EventBus

	// BunDB is set for the bun backend, Gorm for the gorm backend
	BunDB *bun.DB
	Gorm  *db.Manager

	closers []func() error
}

// Setup opens the configured backend and result cache. A nil cfg uses
// config.Default().
func Setup(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Logger: logger, Events: repository.NewEventBus()}

	if err := rt.openBackend(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.openCache(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"backend":      cfg.Backend,
		"result_cache": cfg.ResultCache,
	}).Info("rowrepo runtime ready")
	return rt, nil
}

func (rt *Runtime) openBackend(ctx context.Context) error {
	switch rt.Config.Backend {
	case config.BackendGorm:
		manager, err := db.NewManager(&rt.Config.Database, rt.Logger)
		if err != nil {
			return err
		}
		rt.Gorm = manager
		rt.Executor = db.NewExecutor(manager)
		rt.closers = append(rt.closers, manager.Close)
	default:
		bunDB, err := bundb.Open(ctx, rt.Config.Bun, rt.Logger)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, bunDB.Close)
		exec, err := bundb.NewExecutor(bunDB)
		if err != nil {
			return err
		}
		rt.BunDB = bunDB
		rt.Executor = exec
	}
	return nil
}

func (rt *Runtime) openCache(ctx context.Context) error {
	switch rt.Config.ResultCache {
	case config.ResultCacheLocal:
		local, err := cache.NewLocal(rt.Config.Cache)
		if err != nil {
			return err
		}
		rt.Cache = local
	case config.ResultCacheRedis:
		manager, err := redis.NewManager(&rt.Config.Redis, rt.Logger)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, manager.Close)
		if err := manager.Ping(ctx); err != nil {
			return err
		}
		rt.Cache = redis.NewResultCache(manager)
	}
	return nil
}

// Close releases the backend and cache connections in reverse order of opening
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// NewRepository creates a repository on the runtime's executor with its
// logger, event bus and result cache. opts are applied after those defaults.
func NewRepository[T repository.Entity](rt *Runtime, factory repository.Factory[T], opts ...repository.Option) (*repository.ObjectRepository[T], error) {
	base := []repository.Option{
		repository.WithLogger(rt.Logger),
		repository.WithDispatcher(rt.Events),
	}
	if rt.Cache != nil {
		base = append(base, repository.WithResultCache(rt.Cache))
	}
	return repository.New[T](rt.Executor, factory, append(base, opts...)...)
}

// FindAllCached serves FindAll from the result cache, loading and storing it
// on a miss. A failed store is logged and the loaded entities are returned.
func FindAllCached[T repository.Entity](ctx context.Context, rt *Runtime, repo *repository.ObjectRepository[T]) ([]T, error) {
	key := repo.CacheKey("findAll")

	cached, ok, err := repo.RestoreAllFromCache(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return cached, nil
	}

	all, err := repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if err := repo.StoreAllInCache(ctx, all, key, rt.Config.ResultCacheTTL); err != nil {
		rt.Logger.WithError(err).WithField("key", key).Warn("failed to cache findAll result")
	}
	return all, nil
}
