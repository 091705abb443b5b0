package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/watkajtys/earthquake-sub007/internal/adapter/cache"
	httpadapter "github.com/watkajtys/earthquake-sub007/internal/adapter/http"
	kafkaadapter "github.com/watkajtys/earthquake-sub007/internal/adapter/kafka"
	"github.com/watkajtys/earthquake-sub007/internal/adapter/usgs"
	"github.com/watkajtys/earthquake-sub007/internal/backfill"
	"github.com/watkajtys/earthquake-sub007/internal/config"
	"github.com/watkajtys/earthquake-sub007/internal/detached"
	"github.com/watkajtys/earthquake-sub007/internal/ingest"
	"github.com/watkajtys/earthquake-sub007/internal/monitor"
	"github.com/watkajtys/earthquake-sub007/internal/observability"
	"github.com/watkajtys/earthquake-sub007/internal/proxy"
	"github.com/watkajtys/earthquake-sub007/internal/recordstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := recordstore.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Error("failed to open record store", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}
	if store == nil {
		logger.Warn("record persistence disabled", "driver", cfg.DatabaseDriver)
	}

	cacheStore, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		logger.Error("failed to open edge cache", "backend", cfg.CacheBackend, "error", err)
		os.Exit(1)
	}

	var publisher *kafkaadapter.Writer
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		logger.Info("kafka change feed enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	client := usgs.NewClient(cfg.USGSTimeout, cfg.USGSUserAgent, logger, metrics)
	tasks := detached.NewGroup(cfg.DetachedTimeout, logger, metrics)
	ttl := proxy.ResolveTTL(cfg.CacheTTL, logger)

	var pub ingest.RecordPublisher
	if publisher != nil {
		pub = publisher
	}
	// A nil store leaves the engine without a writer; every upsert is then
	// logged and counted as a configuration error.
	engine := ingest.NewEngine(store, pub, cfg.UpsertBatchSize, logger, metrics)

	svc := httpadapter.Services{}
	if store != nil {
		svc.Records = store
		svc.Backfill = backfill.NewService(client, engine, cfg.USGSQueryURL, logger)
	}

	px := proxy.New(client, cacheStore, engine, tasks, ttl, logger, metrics)
	svc.Proxy = px

	var mon *monitor.Engine
	if cfg.MonitorEnabled {
		mon = monitor.New(px, monitor.Options{
			DayURL:         usgs.FeedURL(cfg.USGSFeedBaseURL, usgs.FeedDay),
			WeekURL:        usgs.FeedURL(cfg.USGSFeedBaseURL, usgs.FeedWeek),
			MonthURL:       usgs.FeedURL(cfg.USGSFeedBaseURL, usgs.FeedMonth),
			Interval:       cfg.RefreshInterval,
			MajorThreshold: cfg.MajorQuakeThreshold,
			Clock:          clockwork.NewRealClock(),
		}, logger, metrics)
		svc.Overview = mon
	}

	checks := []httpadapter.ReadinessChecker{}
	if mon != nil {
		checks = append(checks, mon)
	}
	if store != nil {
		checks = append(checks, httpadapter.ReadinessFunc(store.Ping))
	}
	svc.Ready = httpadapter.AllReady(checks...)

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start merge engine. The first cycle runs before the ticker starts.
	if mon != nil {
		go func() {
			if err := mon.Init(ctx); err != nil {
				logger.Error("merge engine error", "error", err)
			}
		}()
	}

	logger.Info("quake edge started",
		"addr", cfg.HTTPAddr,
		"cache_backend", cfg.CacheBackend,
		"cache_ttl_seconds", ttl,
		"database", cfg.DatabaseDriver,
		"monitor", cfg.MonitorEnabled,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if mon != nil {
		mon.Teardown()
	}
	if err := tasks.WaitContext(shutdownCtx); err != nil {
		logger.Warn("detached tasks still running at shutdown", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := closeCache(); err != nil {
		logger.Error("cache close error", "error", err)
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("record store close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func openCache(ctx context.Context, cfg *config.Config) (cache.Store, func() error, error) {
	switch cfg.CacheBackend {
	case "redis":
		rs := cache.NewRedisStore(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, "quake-edge:")
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		return rs, rs.Close, nil
	default:
		return cache.NewMemoryStore(cfg.CacheMaxEntries, clockwork.NewRealClock()), func() error { return nil }, nil
	}
}
