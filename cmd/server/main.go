// Package main provides the entry point for the topic management service.
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

	"github.com/aiyoutube/topic-management-service/internal/config"
	"github.com/aiyoutube/topic-management-service/internal/database"
	topickafka "github.com/aiyoutube/topic-management-service/internal/kafka"
	"github.com/aiyoutube/topic-management-service/internal/llm"
	"github.com/aiyoutube/topic-management-service/internal/observability"
	"github.com/aiyoutube/topic-management-service/internal/repository"
	httpserver "github.com/aiyoutube/topic-management-service/internal/server/http"
	"github.com/aiyoutube/topic-management-service/internal/service"
)

// metricsNamespace prefixes every Prometheus metric name.
const metricsNamespace = "topicsvc"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("topic-management-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(metricsNamespace)
	}

	// Wire the service: store, outbound producer, normalizer.
	topicRepo := repository.NewPgTopicRepository(db)

	producer := topickafka.NewProducer(topickafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.SubmittedTopic,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		WriteTimeout: cfg.Kafka.WriteTimeout,
	}, logger, metrics)
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()

	normalizer := llm.NewGroqNormalizer(llm.GroqConfig{
		APIKey:             cfg.Normalizer.APIKey,
		BaseURL:            cfg.Normalizer.BaseURL,
		Model:              cfg.Normalizer.Model,
		Temperature:        cfg.Normalizer.Temperature,
		Timeout:            cfg.Normalizer.Timeout,
		MaxRetries:         cfg.Normalizer.MaxRetries,
		RetryDelay:         cfg.Normalizer.RetryDelay,
		RateLimitRPS:       cfg.Normalizer.RateLimitRPS,
		RateLimitBurst:     cfg.Normalizer.RateLimitBurst,
		BreakerMaxFailures: cfg.Normalizer.BreakerMaxFailures,
		BreakerCooldown:    cfg.Normalizer.BreakerCooldown,
	}, logger, metrics)

	topicService := service.NewTopicService(topicRepo, producer, normalizer, logger, metrics)

	// Inbound consumers, one per topic, sharing the consumer group.
	statusHandler := topickafka.NewStatusHandler(topicService, logger, metrics)
	statusConsumer := topickafka.NewConsumer(topickafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.StatusTopic,
		GroupID: cfg.Kafka.GroupID,
	}, statusHandler.Handle, logger)
	defer func() {
		if err := statusConsumer.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close status consumer")
		}
	}()

	analysisHandler := topickafka.NewAnalysisHandler(topicService, logger)
	analysisConsumer := topickafka.NewConsumer(topickafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.AnalysisTopic,
		GroupID: cfg.Kafka.GroupID,
	}, analysisHandler.Handle, logger)
	defer func() {
		if err := analysisConsumer.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close analysis consumer")
		}
	}()

	// HTTP REST API server.
	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	httpSrv := httpserver.NewServer(httpCfg, topicService, db, logger)

	// Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 4)

	go func() {
		logger.Info().Str("address", httpCfg.Address).Msg("HTTP REST API server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	go func() {
		if err := statusConsumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("status consumer error: %w", err)
		}
	}()

	go func() {
		if err := analysisConsumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("analysis consumer error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("topic-management-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down topic-management-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("topic-management-service shutdown complete")
	return nil
}
