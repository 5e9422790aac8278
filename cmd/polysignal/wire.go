package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonnyspicer/mango"

	"polysignal/internal/cache"
	"polysignal/internal/config"
	"polysignal/internal/db"
	"polysignal/internal/engine"
	"polysignal/internal/market"
	"polysignal/internal/metrics"
	"polysignal/internal/news"
)

// app holds everything a command needs and what must be closed afterwards.
type app struct {
	engine  *engine.Engine
	metrics *metrics.Recorder
	db      *sql.DB
	closers []func() error
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{metrics: metrics.New()}

	sources, err := marketSources(cfg)
	if err != nil {
		return nil, err
	}

	var sentiment engine.SentimentSource = news.NewClient(cfg.News, nil)
	if cfg.News.APIKey == "" {
		slog.Warn("no NewsAPI key configured, selections will use market prices only")
	}
	if cfg.Cache.Enabled {
		opts := []cache.Option{cache.WithMetrics(a.metrics)}
		store, err := a.cacheStore(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		if store != nil {
			opts = append(opts, cache.WithStore(store))
		}
		sentiment = cache.NewCachedSource(sentiment, cfg.Cache.Window.Duration, opts...)
		slog.Info("sentiment cache enabled", "window", cfg.Cache.Window.Duration, "backend", cfg.Cache.Backend)
	}

	if cfg.Metrics.Enabled {
		a.serveMetrics(cfg.Metrics)
	}

	a.engine = engine.New(market.NewMultiSource(sources...), sentiment, cfg, engine.WithMetrics(a.metrics))
	return a, nil
}

func marketSources(cfg *config.Config) ([]market.Source, error) {
	var sources []market.Source
	for _, name := range cfg.Sources.Enabled {
		switch name {
		case "polymarket":
			sources = append(sources, market.NewPolymarketSource(cfg.Sources.Polymarket, nil))
		case "manifold":
			sources = append(sources, market.NewManifoldSource(mango.DefaultClientInstance(), cfg.Sources.Manifold.Limit))
			slog.Info("manifold client initialized")
		case "file":
			sources = append(sources, market.NewFileSource(cfg.Sources.File.Path))
		default:
			return nil, &config.ConfigurationError{Field: "sources.enabled", Msg: fmt.Sprintf("unknown source %q", name)}
		}
	}
	slog.Info("market sources registered", "sources", cfg.Sources.Enabled)
	return sources, nil
}

func (a *app) cacheStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "sqlite":
		database, err := db.Open(cfg.General.DBPath)
		if err != nil {
			return nil, fmt.Errorf("sentiment cache: %w", err)
		}
		a.closers = append(a.closers, database.Close)
		if err := db.Migrate(database); err != nil {
			return nil, fmt.Errorf("sentiment cache: %w", err)
		}
		a.db = database
		slog.Info("database initialized", "path", cfg.General.DBPath)
		return cache.NewSQLiteStore(database), nil
	case "redis":
		client := cache.NewRedisClient(cfg.Cache.Redis)
		a.closers = append(a.closers, client.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			// Store errors degrade to misses, so carry on without failing the run.
			slog.Warn("redis unreachable, continuing with memory cache only", "addr", cfg.Cache.Redis.Addr, "error", err)
		}
		return cache.NewRedisStore(client, cfg.Cache.Redis.Prefix), nil
	default:
		return nil, nil
	}
}

func (a *app) serveMetrics(cfg config.MetricsConfig) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, a.metrics.Handler())
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", cfg.Addr, "path", cfg.Path)

	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

func (a *app) purgeCache(ctx context.Context) {
	n, err := db.PurgeExpired(a.db, time.Now().Unix())
	if err != nil {
		slog.Error("cache purge failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("purged expired sentiment cache rows", "rows", n)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
