package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/prober-service/internal/adapter/httpprober"
	"github.com/user/prober-service/internal/adapter/memory"
	"github.com/user/prober-service/internal/adapter/postgres"
	redis_adapter "github.com/user/prober-service/internal/adapter/redis"
	"github.com/user/prober-service/internal/adapter/sqlite"
	"github.com/user/prober-service/internal/candidate"
	"github.com/user/prober-service/internal/delivery/http/handler"
	"github.com/user/prober-service/internal/delivery/http/router"
	"github.com/user/prober-service/internal/delivery/ws"
	"github.com/user/prober-service/internal/entity"
	"github.com/user/prober-service/internal/proxy"
	"github.com/user/prober-service/internal/repository"
	"github.com/user/prober-service/internal/usecase"
	"github.com/user/prober-service/pkg/config"
	"github.com/user/prober-service/pkg/logger"
	"github.com/user/prober-service/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		// The logger is not built yet.
		os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	log.Info("logger initialized", zap.String("level", cfg.LogLevel))

	// --- Metrics ---
	m := metrics.New(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Result store ---
	store, storeIdentity, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("unable to open result store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()
	log.Info("result store ready", zap.String("driver", cfg.StoreDriver))

	// --- Redis (optional) ---
	var (
		runLock repository.RunLock
		queue   *redis_adapter.QueueRepoImpl
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("unable to connect to redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		runLock = redis_adapter.NewRunLock(rdb, storeIdentity)
		queue = redis_adapter.NewQueueRepo(rdb)
		log.Info("redis connection established", zap.String("addr", cfg.RedisAddr))
	}

	// --- Egress pool ---
	poolOpts := []proxy.Option{
		proxy.WithFailureThreshold(uint64(cfg.FailureThreshold)),
		proxy.WithFailureRatio(cfg.FailureRatio),
	}
	pool := proxy.NewPool(nil, poolOpts...)
	if cfg.ProxyFile != "" {
		pool, err = proxy.LoadFile(cfg.ProxyFile, poolOpts...)
		if err != nil {
			log.Fatal("unable to load proxy file", zap.String("path", cfg.ProxyFile), zap.Error(err))
		}
	}
	log.Info("egress pool loaded", zap.Int("proxies", pool.Len()))

	// --- Candidate source ---
	var source candidate.Source
	switch {
	case cfg.WordlistFile != "":
		src, err := candidate.LoadWordlistSource(cfg.WordlistFile, cfg.MaxSuffix)
		if err != nil {
			log.Fatal("unable to load wordlist", zap.String("path", cfg.WordlistFile), zap.Error(err))
		}
		source = src
	case queue != nil:
		source = queue
	default:
		log.Warn("no candidate source configured; runs need explicit candidates")
	}

	// --- Prober ---
	prober, err := httpprober.New(httpprober.Config{
		URLTemplate:           cfg.TargetURLTemplate,
		UserAgent:             cfg.UserAgent,
		TrialKeywords:         config.Keywords(cfg.TrialKeywords),
		FreeKeywords:          config.Keywords(cfg.FreeKeywords),
		DefaultClassification: entity.Classification(cfg.DefaultClassification),
		DialTimeout:           cfg.ProbeTimeout(),
	}, log)
	if err != nil {
		log.Fatal("unable to build prober", zap.Error(err))
	}
	defer prober.Close()

	// --- Engine ---
	hub := ws.NewHub(log)
	engineOpts := []usecase.EngineOption{usecase.WithNotifier(hub), usecase.WithMetrics(m)}
	if runLock != nil {
		engineOpts = append(engineOpts, usecase.WithRunLock(runLock))
	}
	engine := usecase.NewEngine(pool, store, log, usecase.EngineConfig{
		ProbeTimeout:     cfg.ProbeTimeout(),
		DispatchInterval: cfg.DispatchInterval(),
		StatsInterval:    cfg.StatsInterval(),
		RunLockTTL:       cfg.RunLockTTL(),
		RequireProxy:     cfg.RequireProxy,
	}, engineOpts...)

	var queueRepo repository.QueueRepository
	if queue != nil {
		queueRepo = queue
	}
	runs := usecase.NewRunManager(engine, store, source, queueRepo, prober, cfg.Workers, log)

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(runs, log)
	httpRouter := router.New(apiHandler, router.Deps{
		Logger:   log,
		Metrics:  m,
		Gatherer: prometheus.DefaultGatherer,
		Push:     hub.ServeWs,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           httpRouter,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		engine.Stop()
		if err := engine.Wait(shutdownCtx); err != nil {
			log.Warn("engine did not drain before shutdown", zap.Error(err))
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}

// openStore builds the configured RecordRepository. The identity string scopes the run lock.
func openStore(ctx context.Context, cfg *config.Config) (repository.RecordRepository, string, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		dbpool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, "", nil, err
		}
		if err := dbpool.Ping(ctx); err != nil {
			dbpool.Close()
			return nil, "", nil, err
		}
		repo := postgres.NewRecordRepo(dbpool)
		if err := repo.EnsureSchema(ctx); err != nil {
			dbpool.Close()
			return nil, "", nil, err
		}
		return repo, "postgres:" + cfg.PostgresURL, dbpool.Close, nil
	case config.StoreSQLite:
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, "", nil, err
		}
		return repo, "sqlite:" + cfg.SQLitePath, func() { _ = repo.Close() }, nil
	default:
		hostname, _ := os.Hostname()
		return memory.NewRecordRepository(), "memory:" + hostname + ":" + cfg.ServerPort, func() {}, nil
	}
}
