// moniewatch-worker consumes report generation jobs and serves health and
// metrics endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Ichinga-Samuel/MonieWatch/internal/aggregator"
	"github.com/Ichinga-Samuel/MonieWatch/internal/config"
	"github.com/Ichinga-Samuel/MonieWatch/internal/jobs"
	"github.com/Ichinga-Samuel/MonieWatch/internal/report"
	"github.com/Ichinga-Samuel/MonieWatch/internal/store"
	"github.com/Ichinga-Samuel/MonieWatch/pkg/cache"
	"github.com/Ichinga-Samuel/MonieWatch/pkg/client"
	"github.com/Ichinga-Samuel/MonieWatch/pkg/logging"
	"github.com/Ichinga-Samuel/MonieWatch/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is optional. Without it the worker runs uncached and unthrottled.
	var cacheManager *cache.Manager
	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		cacheManager = cache.NewManager(redisClient, cache.DefaultTTL, logging.NewLogger("cache"))
		limiter = ratelimit.New(redisClient, 0, logging.NewLogger("ratelimit"))
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
	}

	var reportStore *store.Store
	if cfg.DatabaseURL != "" {
		pool, err := store.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		if err := store.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("Failed to apply database schema")
		}
		reportStore = store.New(pool)
		logger.Info().Msg("Connected to PostgreSQL")
	}

	drafts := aggregator.NewService(newClientFactory(cfg, limiter), cacheManager)

	var uploader report.Uploader
	if cfg.StorageBucketURL != "" {
		uploader = report.NewHTTPStorage(cfg.StorageBucketURL, cfg.StoragePublicBase)
	}
	var mailer report.Mailer
	if cfg.SMTPAddr != "" {
		mailer = report.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword)
	}
	var recorder report.Store
	if reportStore != nil {
		recorder = reportStore
	}
	reports := report.NewService(drafts, report.NewPDFRenderer(), uploader, recorder, mailer)

	var principals jobs.PrincipalSource
	if reportStore != nil {
		principals = reportStore
	}
	consumer, err := jobs.NewConsumer(jobs.Config{
		URL:        cfg.AMQPURL,
		Exchange:   cfg.AMQPExchange,
		Queue:      cfg.AMQPQueue,
		RoutingKey: cfg.AMQPRoutingKey,
	}, reports, principals)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer consumer.Close()

	server := &http.Server{Addr: ":" + cfg.Port, Handler: newServeMux()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- consumer.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err := <-consumerErr:
		if err != nil {
			logger.Error().Err(err).Msg("Job consumer stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
}

func setupLogging(cfg *config.Config) zerolog.Logger {
	return logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
	})
}

// newClientFactory builds one upstream client per principal, sharing the
// worker's rate limit budget. limiter may be nil.
func newClientFactory(cfg *config.Config, limiter *ratelimit.Limiter) aggregator.ClientFactory {
	return func(p aggregator.Principal) (aggregator.APIClient, error) {
		return client.New(client.Config{
			BaseURL:  cfg.APIBaseURL,
			Username: p.Username,
			Password: p.Password,
			PageSize: cfg.PageSize,
			Limiter:  limiter,
		})
	}
}

func newServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
