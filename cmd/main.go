package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/angeloszaimis/failover/config"
	"github.com/angeloszaimis/failover/internal/endpoint"
	"github.com/angeloszaimis/failover/internal/failover"
	"github.com/angeloszaimis/failover/internal/handler"
	"github.com/angeloszaimis/failover/internal/httpserver"
	"github.com/angeloszaimis/failover/internal/metrics"
	"github.com/angeloszaimis/failover/internal/transport"
	"github.com/angeloszaimis/failover/pkg/logger"
)

var errNoTargets = errors.New("no failover targets configured")

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collector := metrics.NewCollector(cfg.Metrics.BufferSize, log, registry)
	collector.Start(ctx)

	decider, err := newDecider(cfg, log, collector)
	if err != nil {
		log.Error("Failed to create failover decider", slog.Any("err", err))
		os.Exit(1)
	}

	rt := newTransport(cfg, decider, collector, log)
	primary := decider.Targets()[0]
	failoverHandler := handler.NewFailoverHandler(log, rt, primary, cfg.Failover.Scheme)

	requestTimeout := cfg.RequestTimeoutDuration()
	router := setupRouter(failoverHandler, collector, registry, requestTimeout)

	srv, err := httpserver.New(cfg.Server.Address, router, writeTimeout(requestTimeout))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Starting failover proxy",
		slog.String("address", cfg.Server.Address),
		slog.String("primary", primary.String()),
		slog.Int("targets", len(decider.Targets())),
		slog.Duration("cooldown", decider.Cooldown()))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting failover proxy", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func newDecider(cfg *config.Config, log *slog.Logger, listener failover.Listener) (*failover.Decider, error) {
	targets, err := endpoint.ParseList(cfg.Failover.Targets)
	if err != nil {
		return nil, err
	}

	if len(targets) == 0 {
		return nil, errNoTargets
	}

	return failover.New(targets, cfg.CooldownDuration(),
		failover.WithLogger(log),
		failover.WithListener(listener),
	), nil
}

func newTransport(cfg *config.Config, decider transport.Decider, observer transport.AttemptObserver, log *slog.Logger) *transport.Transport {
	return transport.New(transport.Options{
		Decider:      decider,
		MaxAttempts:  cfg.Failover.MaxAttempts,
		RetryLimiter: rate.NewLimiter(rate.Limit(cfg.Failover.RetryRate), cfg.Failover.RetryBurst),
		Observer:     observer,
		Logger:       log,
	})
}

// writeTimeout leaves room to write the response after a request that used
// its whole timeout.
func writeTimeout(requestTimeout time.Duration) time.Duration {
	if requestTimeout <= 0 {
		return 0
	}
	return requestTimeout + 5*time.Second
}
