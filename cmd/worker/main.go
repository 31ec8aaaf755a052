// Package main provides the entry point for the paper search AMQP worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/helixir/paper-search-service/internal/app"
	"github.com/helixir/paper-search-service/internal/config"
	"github.com/helixir/paper-search-service/internal/messaging"
	"github.com/helixir/paper-search-service/internal/observability"
	httpserver "github.com/helixir/paper-search-service/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("paper-search-service worker starting")

	if !cfg.AMQP.Enabled {
		return errors.New("amqp is disabled; the worker has nothing to consume")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	application, err := app.New(ctx, cfg, logger, metrics, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to release resources")
		}
	}()

	registry := messaging.NewRegistry()
	consumer := messaging.NewConsumer(messaging.ConsumerConfig{
		URL: cfg.AMQP.URL,
		Topology: messaging.Topology{
			Exchange:           cfg.AMQP.Exchange,
			Queue:              cfg.AMQP.Queue,
			RoutingKey:         cfg.AMQP.RoutingKey,
			ResponseRoutingKey: cfg.AMQP.ResponseRoutingKey,
			MessageTTL:         cfg.AMQP.MessageTTL,
			MaxLength:          cfg.AMQP.MaxLength,
			Prefetch:           cfg.AMQP.Prefetch,
		},
	}, nil, registry, logger, metrics)

	handler := messaging.NewSearchHandler(
		application.Service,
		consumer.Publisher(),
		application.Events,
		consumer.Topology().ResponseRoutingKey,
		logger,
	)
	// Requests arrive as "scholarai.websearch"; the first segment is the type.
	registry.Register(messaging.MessageType(consumer.Topology().RoutingKey), handler)
	registry.SetDefault(handler)

	var opsServer *httpserver.Server
	if cfg.Metrics.Enabled {
		checks := application.Checks()
		checks["amqp"] = func(context.Context) error {
			if !consumer.Publisher().Ready() {
				return messaging.ErrNotConnected
			}
			return nil
		}
		opsServer = httpserver.NewOpsServer(opsConfig(cfg), checks, cfg.Metrics.Path, logger)

		go func() {
			if err := opsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("ops server error")
			}
		}()
	}

	logger.Info().
		Strs("message_types", registry.Types()).
		Str("queue", consumer.Topology().Queue).
		Msg("starting consumer")

	runErr := consumer.Supervise(ctx, cfg.AMQP.ReconnectDelay)

	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("ops server shutdown error")
		}
	}

	if runErr != nil {
		return fmt.Errorf("consumer: %w", runErr)
	}
	logger.Info().Msg("worker stopped")
	return nil
}

// opsConfig derives the listener settings of the health and metrics server.
func opsConfig(cfg *config.Config) httpserver.Config {
	return httpserver.Config{
		Address:         cfg.MetricsAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
}
