package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/api"
	"github.com/Jem1004/pklapps-v2-sub000/internal/config"
	"github.com/Jem1004/pklapps-v2-sub000/internal/connectivity"
	"github.com/Jem1004/pklapps-v2-sub000/internal/credential"
	"github.com/Jem1004/pklapps-v2-sub000/internal/domain"
	"github.com/Jem1004/pklapps-v2-sub000/internal/errclass"
	"github.com/Jem1004/pklapps-v2-sub000/internal/events"
	"github.com/Jem1004/pklapps-v2-sub000/internal/logging"
	"github.com/Jem1004/pklapps-v2-sub000/internal/metrics"
	"github.com/Jem1004/pklapps-v2-sub000/internal/models"
	"github.com/Jem1004/pklapps-v2-sub000/internal/queue"
	"github.com/Jem1004/pklapps-v2-sub000/internal/remote"
	"github.com/Jem1004/pklapps-v2-sub000/internal/report"
	"github.com/Jem1004/pklapps-v2-sub000/internal/service"
	"github.com/Jem1004/pklapps-v2-sub000/internal/submit"
	"github.com/Jem1004/pklapps-v2-sub000/internal/syncer"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	store, err := queue.NewStore(cfg.Database.Path, cfg.Queue.Capacity, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize offline queue")
		return err
	}
	defer store.Close()

	credentialRepo := initCredentialRepo(ctx, cfg, &logger)
	cache := credential.NewCache(credentialRepo, models.DefaultSuggestionLimit, &logger)

	bus := events.NewEventBus()

	prober := connectivity.NewHTTPProber(cfg.Connectivity.ProbeURL, cfg.Connectivity.ProbeTimeout)
	monitor := connectivity.NewMonitor(prober, connectivity.Config{
		FastThreshold: cfg.Connectivity.FastThreshold,
		SlowThreshold: cfg.Connectivity.SlowThreshold,
		Interval:      cfg.Connectivity.ProbeInterval,
	}, bus, &logger)
	go monitor.Start(ctx)

	channel := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, cfg.Remote.Timeout)
	if err := channel.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("record service unreachable at startup, submissions will queue offline")
	}
	classifier := errclass.NewClassifier(&logger)

	orchestrator := submit.NewOrchestrator(monitor, store, classifier, submit.RetryPolicy{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		InitialDelay:  cfg.Retry.InitialDelay,
		MaxDelay:      cfg.Retry.MaxDelay,
		BackoffFactor: cfg.Retry.BackoffFactor,
	}, bus, &logger)

	engine := syncer.NewEngine(store, channel, classifier, syncer.Config{
		RetryLimit: cfg.Queue.SyncRetryLimit,
		RPS:        cfg.Sync.RPS,
		Burst:      cfg.Sync.Burst,
	}, bus, &logger)
	unsubscribe := engine.Start(ctx, bus)
	defer unsubscribe()

	svc := service.NewSubmissionService(orchestrator, engine, cache, store, channel, monitor, bus, &logger)
	writer := report.NewWriter(store, cfg.Exports.Path, &logger)

	subscribeFailureLogging(bus, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		go serveMetrics(cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, svc, writer, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("local API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().Msg("agent started")
	<-ctx.Done()
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := logging.WithComponent(baseLogger, "agent-main")

	return cfg, logger, closer, nil
}

func initCredentialRepo(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) domain.CredentialRepository {
	fallback := credential.NewMemoryRepository(models.DefaultCredentialHistory)
	if cfg.Redis.Address == "" {
		return fallback
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := credential.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}

	primary := credential.NewRedisRepository(client, models.DefaultRedisTTL, models.DefaultCredentialHistory)
	return credential.NewFailoverRepository(primary, fallback, logger)
}

func subscribeFailureLogging(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventSubmissionFailed, func(ev *events.Event) error {
		logger.Error().RawJSON("payload", ev.Payload).Msg("submission needs attention")
		return nil
	})
}

func serveMetrics(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
