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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	httpapi "rlregistry/internal/http"
	"rlregistry/internal/platform/config"
	"rlregistry/internal/platform/httpserver"
	"rlregistry/internal/platform/kafka"
	"rlregistry/internal/platform/logger"
	"rlregistry/internal/platform/metrics"
	"rlregistry/internal/platform/postgres"
	rlredis "rlregistry/internal/platform/redis"
	"rlregistry/internal/revocation/handler"
	"rlregistry/internal/revocation/service"
	"rlregistry/internal/revocation/snapshot"
	"rlregistry/internal/revocation/store"
	audit "rlregistry/pkg/platform/audit"
	"rlregistry/pkg/platform/audit/publisher"
	"rlregistry/pkg/platform/audit/store/failover"
	"rlregistry/pkg/platform/audit/store/logsink"
	"rlregistry/pkg/platform/middleware/auth"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

type listStore interface {
	service.ListStore
	snapshot.ListSource
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	checks := map[string]httpapi.HealthCheck{}
	lists, closeStore, err := openStore(ctx, cfg, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	sink, closeSink, err := openAuditSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()
	auditPublisher := publisher.NewPublisher(sink, publisher.WithAsyncBuffer(1024), publisher.WithLogger(log))
	defer auditPublisher.Close()

	var snap *snapshot.Snapshotter
	if cfg.Snapshot.Enabled() {
		objects, err := snapshot.NewMinioStore(ctx, cfg.Snapshot)
		if err != nil {
			return fmt.Errorf("snapshot store: %w", err)
		}
		checks["snapshot"] = objects.Health
		snap = snapshot.New(lists, objects, cfg.Snapshot.Object, snapshot.WithLogger(log), snapshot.WithMetrics(m))
		n, err := snap.Restore(ctx)
		if err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		log.Info("snapshot restored", "lists", n)
	}

	svc := service.New(lists,
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(m),
	)

	var handlerOpts []handler.Option
	if cfg.JWTSigningKey != "" {
		handlerOpts = append(handlerOpts, handler.WithMutationGuard(auth.RequireBearer(auth.NewVerifier(cfg.JWTSigningKey), log)))
	} else {
		log.Warn("JWT_SIGNING_KEY not set, mutating routes are unauthenticated")
	}
	router := httpapi.NewRouter(httpapi.Options{
		Logger:   log,
		Gatherer: reg,
		Checks:   checks,
	}, handler.New(svc, log, handlerOpts...))
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting revocation list registry", "addr", cfg.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	if snap != nil {
		g.Go(func() error {
			return snap.Run(gctx, cfg.Snapshot.Interval, cfg.ShutdownTimeout)
		})
	}
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Server, checks map[string]httpapi.HealthCheck) (listStore, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		checks["postgres"] = db.PingContext
		return pg, func() { _ = db.Close() }, nil
	case config.StoreRedis:
		client, err := rlredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		checks["redis"] = client.Health
		return store.NewRedis(client.Client), func() { _ = client.Close() }, nil
	default:
		return store.NewInMemory(), func() {}, nil
	}
}

func openAuditSink(ctx context.Context, cfg config.Server, log *slog.Logger) (audit.Store, func(), error) {
	if !cfg.Kafka.Enabled() {
		return logsink.New(log), func() {}, nil
	}
	pub, err := kafka.NewPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, kafka.WithLogger(log))
	if err != nil {
		return nil, nil, fmt.Errorf("audit stream: %w", err)
	}
	sink := failover.New(pub, logsink.New(log), failover.WithLogger(log))
	return sink, pub.Close, nil
}
