// Package app wires the dashboard together from a validated config: store,
// cache, insights, REST API, gRPC admin and the listeners serving them.
package app

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"accessdash/internal/admin"
	"accessdash/internal/api"
	"accessdash/internal/breaker"
	"accessdash/internal/cache"
	"accessdash/internal/config"
	"accessdash/internal/insights"
	"accessdash/internal/limits"
	"accessdash/internal/obs"
	"accessdash/internal/server"
	"accessdash/internal/store"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *obs.Metrics
	Cache    *cache.Cache
	Store    store.Store
	Insights *insights.Service
	Handler  *api.Handler

	grpcServer *grpc.Server
	health     *health.Server
	limits     limits.Limits
	stoppers   []server.Stopper
	closers    []server.Stopper
	server     *server.Server
}

// New builds every component but opens no listener; see Start. A memory
// store with watch enabled starts watching its seed file under ctx.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: obs.NewMetrics()}

	a.Cache = cache.New(cache.Options{
		DefaultTTL:  config.Millis(cfg.Cache.DefaultTTLMS),
		Logger:      logger.Named("cache"),
		Coalesce:    cfg.Cache.CoalesceEnabled(),
		MaxFlights:  cfg.Cache.MaxFlights,
		OnBreakaway: a.Metrics.RecordCoalesceBreakaway,
	})
	a.Metrics.RegisterCache(a.Cache)

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	var err error
	if a.Insights, err = newInsights(cfg.Insights); err != nil {
		a.stop()
		return nil, err
	}
	if a.limits, err = limits.FromConfig(cfg.Limits); err != nil {
		a.stop()
		return nil, err
	}

	token := config.AdminToken(cfg)
	a.Handler = api.NewHandler(api.Config{
		Store:       a.Store,
		Cache:       a.Cache,
		Insights:    a.Insights,
		InsightsTTL: config.Millis(cfg.Insights.TTLMS),
		Metrics:     a.Metrics,
		Logger:      logger.Named("api"),
		AdminToken:  token,
		RateLimiter: api.NewRateLimiter(api.RateLimitConfig{
			RPS:   cfg.API.RateLimitRPS,
			Burst: cfg.API.RateLimitBurst,
		}),
	})

	if cfg.AdminAddr != "" {
		a.grpcServer, a.health = admin.NewGRPCServer(admin.NewServer(a.Cache, logger.Named("admin")), token)
		a.stoppers = append(a.stoppers, server.StopFunc(func(context.Context) error {
			a.health.Shutdown()
			return nil
		}))
	}
	return a, nil
}

func (a *App) Start() error {
	listenAddr := a.Config.ListenAddr
	if listenAddr == "" {
		listenAddr = config.DefaultListenAddr
	}
	srv, err := server.StartServers(a.Handler, listenAddr, a.grpcServer, a.Config.AdminAddr, server.Options{
		Limits:          a.limits,
		GracefulTimeout: config.Millis(a.Config.Shutdown.GracefulTimeoutMS),
		Stoppers:        a.stoppers,
		Logger:          a.Logger,
	})
	if err != nil {
		a.stop()
		return err
	}
	a.server = srv
	a.Logger.Info("accessdash started",
		zap.String("http_addr", srv.HTTPAddr),
		zap.String("admin_addr", srv.AdminAddr),
		zap.String("store", storeDriver(a.Config)),
		zap.Duration("default_ttl", a.Cache.DefaultTTL()),
		zap.Bool("coalesce", a.Config.Cache.CoalesceEnabled()),
		zap.Bool("insights", a.Insights.Enabled()),
	)
	return nil
}

func (a *App) HTTPAddr() string {
	if a.server == nil {
		return ""
	}
	return a.server.HTTPAddr
}

func (a *App) AdminAddr() string {
	if a.server == nil {
		return ""
	}
	return a.server.AdminAddr
}

// Shutdown drains the listeners and then releases the store. It is safe to
// call on an App that never started.
func (a *App) Shutdown() error {
	if a.server == nil {
		a.stop()
		return nil
	}
	err := a.server.Shutdown()
	a.closeAll()
	return err
}

func (a *App) stop() {
	for _, stopper := range a.stoppers {
		_ = stopper.Stop(context.Background())
	}
	a.stoppers = nil
	a.closeAll()
}

func (a *App) closeAll() {
	for _, closer := range a.closers {
		if err := closer.Stop(context.Background()); err != nil {
			a.Logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	switch storeDriver(cfg) {
	case config.StoreDriverSpanner:
		sp, err := store.NewSpannerStore(ctx, cfg.Store.SpannerDatabase)
		if err != nil {
			return err
		}
		a.Store = sp
		a.closers = append(a.closers, server.StopFunc(func(context.Context) error {
			sp.Close()
			return nil
		}))
		return nil
	case config.StoreDriverMemory:
		snap := &store.Snapshot{}
		if cfg.Store.SeedFile != "" {
			loaded, err := store.LoadSnapshot(cfg.Store.SeedFile)
			if err != nil {
				return err
			}
			snap = loaded
		}
		ms := store.NewMemoryStore(snap)
		a.Store = ms
		if !cfg.Store.Watch {
			return nil
		}
		watcher, err := store.NewWatcher(cfg.Store.SeedFile, 0, a.Logger.Named("store"), a.reloadFunc(ms, cfg.Store.SeedFile))
		if err != nil {
			return err
		}
		go watcher.Run(ctx)
		a.closers = append(a.closers, server.StopFunc(func(context.Context) error {
			return watcher.Close()
		}))
		return nil
	default:
		return errors.New("unknown store driver")
	}
}

// reloadFunc reloads the seed and drops every cached lookup so no reader
// sees data from the previous file.
func (a *App) reloadFunc(ms *store.MemoryStore, seed string) func() {
	logger := a.Logger.Named("store")
	return func() {
		err := ms.Reload(seed)
		a.Metrics.RecordStoreReload(err)
		if err != nil {
			logger.Error("seed reload failed", zap.String("path", seed), zap.Error(err))
			return
		}
		a.Cache.Clear()
		logger.Info("seed reloaded, cache cleared", zap.String("path", seed))
	}
}

func newInsights(cfg config.InsightsConfig) (*insights.Service, error) {
	if !cfg.Enabled {
		return insights.NewService(nil, "", 0), nil
	}
	gen, err := insights.NewOllamaGenerator(cfg.Host, cfg.Model, nil)
	if err != nil {
		return nil, err
	}
	b := breaker.New(breaker.Config{
		FailureRatePercent: cfg.Breaker.FailureRatePercent,
		MinimumRequests:    cfg.Breaker.MinimumRequests,
		EvaluationWindow:   config.Millis(cfg.Breaker.WindowMS),
		OpenDuration:       config.Millis(cfg.Breaker.OpenMS),
	})
	return insights.NewService(insights.Guard(gen, b), cfg.Model, config.Millis(cfg.TimeoutMS)), nil
}

func storeDriver(cfg *config.Config) string {
	driver := strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if driver == "" {
		return config.StoreDriverMemory
	}
	return driver
}
