// Command timer-engine runs the durable deferred-callback dispatch
// service: it loads configuration, connects to Postgres (and optionally
// NATS and Redis), and runs the claim-and-dispatch engine until
// terminated, per SPEC_FULL.md §2.1/§5.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Rocket-Innovation/mca-timer/internal/config"
	"github.com/Rocket-Innovation/mca-timer/internal/dbconn"
	"github.com/Rocket-Innovation/mca-timer/internal/logging"
	"github.com/Rocket-Innovation/mca-timer/pkg/admission"
	"github.com/Rocket-Innovation/mca-timer/pkg/dispatcher"
	"github.com/Rocket-Innovation/mca-timer/pkg/engine"
	"github.com/Rocket-Innovation/mca-timer/pkg/invalidate"
	"github.com/Rocket-Innovation/mca-timer/pkg/leader"
	"github.com/Rocket-Innovation/mca-timer/pkg/metrics"
	"github.com/Rocket-Innovation/mca-timer/pkg/pubsub"
	"github.com/Rocket-Innovation/mca-timer/pkg/timerstore"
)

// shutdownGrace bounds how long the admission and metrics servers get to
// finish in-flight requests after a termination signal. The engine is not
// awaited: canceling the root context cancels in-flight dispatches
// instead of letting them finish.
const shutdownGrace = 20 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_FILE")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log, atomicLevel, err := logging.NewAtomic(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	if configPath != "" {
		if watcher, err := config.NewWatcher(configPath, log, atomicLevel.Set); err == nil {
			stop := make(chan struct{})
			defer close(stop)
			go watcher.Run(stop)
		} else {
			log.Info("config hot-reload disabled", "reason", err.Error())
		}
	}

	dbLog := logrus.New()
	db, err := dbconn.Connect(cfg.Postgres, dbconn.DefaultPoolConfig(), dbLog)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	store := timerstore.NewPostgresStore(db)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	dispOpts := []dispatcher.Option{}
	pubSubEnabled := false
	if cfg.NATS.Host != "" {
		natsOpts := []nats.Option{}
		if cfg.NATS.User != "" {
			natsOpts = append(natsOpts, nats.UserInfo(cfg.NATS.User, cfg.NATS.Password))
		}
		natsConn, err := pubsub.Connect(fmt.Sprintf("nats://%s:%d", cfg.NATS.Host, cfg.NATS.Port), natsOpts...)
		if err != nil {
			log.Error(err, "failed to connect to NATS, pub-kind callbacks will be rejected at creation")
		} else {
			defer natsConn.Close()
			dispOpts = append(dispOpts, dispatcher.WithPublisher(pubsub.NewNATSPublisher(natsConn)))
			pubSubEnabled = true
		}
	}
	disp := dispatcher.New(store, dispOpts...)

	engOpts := []engine.Option{engine.WithLogger(log)}

	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		hostname, _ := os.Hostname()
		elector := leader.NewRedisElector(redisClient, "timer-engine-leader", hostname, leader.WithLogger(log))
		engOpts = append(engOpts, engine.WithElector(elector))
	}

	invalidateDSN := dbconn.ConnectionString(cfg.Postgres)
	if listener, err := invalidate.Connect(context.Background(), invalidateDSN, log); err == nil {
		defer listener.Close(context.Background())
		engOpts = append(engOpts, engine.WithInvalidationListener(listener))
	} else {
		log.Info("cache invalidation listener disabled", "reason", err.Error())
	}

	eng := engine.New(store, disp, engOpts...)

	admissionServer := admission.New(store, cfg.Server.APIKey,
		admission.WithLogger(log), admission.WithMetrics(m), admission.WithPubSubEnabled(pubSubEnabled))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: admissionServer,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: metricsMux,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 3)
	go func() {
		log.Info("admission API listening", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("admission server: %w", err)
		}
	}()
	go func() {
		log.Info("metrics listening", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		if err := eng.Run(ctx); err != nil {
			errCh <- fmt.Errorf("engine: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error(err, "fatal component error, shutting down")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "admission server shutdown did not complete cleanly")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "metrics server shutdown did not complete cleanly")
	}

	return nil
}
