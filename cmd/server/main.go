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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"reconciler/internal/contact"
	"reconciler/internal/contact/cache"
	"reconciler/internal/contact/events"
	contactmetrics "reconciler/internal/contact/metrics"
	"reconciler/internal/contact/service"
	httpapi "reconciler/internal/http"
	"reconciler/internal/platform/config"
	"reconciler/internal/platform/httpserver"
	"reconciler/internal/platform/logger"
	"reconciler/internal/platform/metrics"
	"reconciler/internal/platform/redis"
	"reconciler/pkg/platform/circuit"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	backend, err := contact.OpenBackend(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	defer backend.Close()

	checks := []httpapi.Check{{Name: "store", Ping: backend.Ping}}
	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(contactmetrics.New(prometheus.DefaultRegisterer)),
		service.WithMaxAttempts(cfg.Reconcile.MaxAttempts),
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		viewCache := cache.NewGuarded(
			cache.NewRedisViewCache(redisClient.Client, cfg.Redis.ViewTTL),
			circuit.New("view-cache"),
			log,
		)
		opts = append(opts, service.WithViewCache(viewCache))
		checks = append(checks, httpapi.Check{Name: "redis", Ping: redisClient.Health})
	}

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, service.WithPublisher(publisher))
		checks = append(checks, httpapi.Check{Name: "kafka", Ping: publisher.Ping})
	}

	svc, err := contact.NewService(backend.Tx, opts...)
	if err != nil {
		return err
	}
	router := httpapi.NewRouter(log, metrics.New(prometheus.DefaultRegisterer), checks, contact.NewHandler(svc, log))
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting reconciler",
			"addr", cfg.Addr,
			"store", backend.Name,
			"view_cache", redisClient != nil,
			"events", len(cfg.Kafka.Brokers) > 0,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
