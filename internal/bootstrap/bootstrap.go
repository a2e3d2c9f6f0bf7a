// Package bootstrap assembles the fulfillment services from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fulfillment/internal/app"
	"fulfillment/internal/cache"
	"fulfillment/internal/clock"
	"fulfillment/internal/config"
	"fulfillment/internal/core"
	"fulfillment/internal/db"
	"fulfillment/internal/logging"
	"fulfillment/internal/memstore"
	"fulfillment/migrations"
)

// Options selects the backing store.
type Options struct {
	// Memory uses the in-process store instead of Postgres.
	Memory bool
	// Migrate applies pending migrations before serving.
	Migrate bool
	Clock   clock.Clock
}

// Runtime holds the assembled services and the resources they own.
type Runtime struct {
	Service app.ApplicationService
	Store   core.Store
	// DB is nil when running on the in-memory store.
	DB     *db.Store
	Pool   *pgxpool.Pool
	closer []func()
}

// Close releases the pool and cache connections.
func (r *Runtime) Close() {
	for i := len(r.closer) - 1; i >= 0; i-- {
		r.closer[i]()
	}
	r.closer = nil
}

// Build connects the configured store and cache and wires the services over them.
// A Redis outage disables the cache rather than failing startup.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger = logging.OrNop(logger)
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}

	rt := &Runtime{}
	if opts.Memory {
		rt.Store = memstore.New()
		logger.Info("using in-memory store")
	} else {
		pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, err
		}
		rt.Pool = pool
		rt.closer = append(rt.closer, pool.Close)

		if opts.Migrate {
			applied, err := migrations.Apply(ctx, pool)
			if err != nil {
				rt.Close()
				return nil, fmt.Errorf("failed to apply migrations: %w", err)
			}
			if len(applied) > 0 {
				logger.Info("migrations applied", zap.Strings("names", applied))
			}
		}
		rt.DB = db.NewStore(pool)
		rt.Store = rt.DB
	}

	var progressCache app.ProgressCache
	if cfg.Redis.Addr != "" {
		client, err := cache.Dial(ctx, cfg.Redis.Addr)
		if err != nil {
			logger.Warn("progress cache disabled", zap.Error(err))
		} else {
			rt.closer = append(rt.closer, func() { closeRedis(client, logger) })
			progressCache = cache.NewProgressCache(client, time.Duration(cfg.Redis.ProgressTTLSeconds)*time.Second)
		}
	}

	rules := core.NewRuleSet(cfg.Matching.SerializedTypes...)
	services := core.NewServices(rt.Store, rules, clk, core.WithFallback(cfg.Matching.AllowFallback))
	rt.Service = app.NewAppService(rt.Store, services, progressCache, logger)
	return rt, nil
}

func closeRedis(client *redis.Client, logger *zap.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("close redis", zap.Error(err))
	}
}
