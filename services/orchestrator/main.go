package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"grievancebot/services/orchestrator/backend"
	"grievancebot/services/orchestrator/config"
	"grievancebot/services/orchestrator/dialogue"
	"grievancebot/services/orchestrator/knowledge"
	"grievancebot/services/orchestrator/langpack"
	"grievancebot/services/orchestrator/router"
	"grievancebot/services/orchestrator/session"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("orchestrator stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = lvl
	return zcfg.Build()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("connected to redis")

	catalog, err := langpack.Default()
	if err != nil {
		return err
	}
	matcher, err := knowledge.Default()
	if err != nil {
		return err
	}

	store, err := session.NewStore(session.StoreType(cfg.Session.Store),
		session.WithRedisClient(rdb),
		session.WithTTL(cfg.GetSessionTTL()))
	if err != nil {
		return err
	}
	defer store.Close()

	client := backend.NewClient(cfg.Backend.URL,
		backend.WithTimeouts(cfg.GetTimeouts()),
		backend.WithLogger(logger.Named("backend")))
	monitor := backend.NewMonitor(client, catalog, cfg.GetHealthInterval(), logger.Named("monitor"))

	engine := dialogue.NewEngine(catalog, matcher,
		dialogue.WithBackendQuery(cfg.Backend.AskBackend),
		dialogue.WithSuggestionSource(monitor),
		dialogue.WithFollowUpDelay(cfg.GetFollowUpDelay()))

	r := router.New(rdb, router.NewRedisBus(rdb), engine, store,
		backend.NewExecutor(client, cfg.GetRetrier()), monitor,
		router.WithConsumer(cfg.Redis.Group, cfg.Redis.Consumer),
		router.WithDefaultLanguage(cfg.GetDefaultLanguage()),
		router.WithLogger(logger.Named("router")))
	if err := r.EnsureConsumerGroup(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           healthHandler(rdb, monitor),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return monitor.Run(ctx) })
	g.Go(func() error { return r.ConsumeLoop(ctx) })
	g.Go(func() error {
		logger.Info("orchestrator listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func healthHandler(rdb *redis.Client, ready router.Readiness) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{"status": "ok", "redis": "ok", "backend_ready": ready.Ready()}
		code := http.StatusOK
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			status["status"], status["redis"] = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
	return mux
}
