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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"intellib/internal/audit"
	"intellib/internal/identity"
	"intellib/internal/localstate"
	"intellib/internal/navigation"
	"intellib/internal/platform/config"
	"intellib/internal/platform/httpserver"
	"intellib/internal/platform/logger"
	"intellib/internal/platform/metrics"
	"intellib/internal/platform/redis"
	"intellib/internal/session"
	"intellib/internal/session/liveness"
	httptransport "intellib/internal/transport/http"
)

const (
	shutdownTimeout = 10 * time.Second
	auditQueueSize  = 256
)

// main wires the session core behind the shell HTTP surface and keeps the
// process lifecycle small. Session logic lives in internal/session.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("shell exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New(prometheus.DefaultRegisterer)

	state, closeState, err := buildState(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeState()

	provider := buildProvider(cfg, log)

	auditInbox := make(chan audit.Event, auditQueueSize)
	auditWorker := audit.NewWorker(audit.NewInMemoryStore(), auditInbox)

	history := navigation.NewHistory("/", 0)
	prober := liveness.NewHTTPProber(cfg.HealthURL(), liveness.WithProbeTimeout(cfg.Liveness.Timeout))
	coordinator := session.New(provider, state, history, prober,
		session.WithLogger(log),
		session.WithMetrics(m),
		session.WithAuditPublisher(audit.NewQueuedPublisher(auditInbox)),
		session.WithProbeInterval(cfg.Liveness.Interval),
		session.WithSignOutTimeout(cfg.Teardown.SignOutTimeout),
		session.WithLoginPath(cfg.Teardown.LoginPath),
	)

	handler := httptransport.NewHandler(coordinator, history,
		httptransport.WithLogger(log),
		httptransport.WithLoginPath(cfg.Teardown.LoginPath),
	)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, promhttp.Handler()))

	g, gctx := errgroup.WithContext(ctx)

	coordinator.Start(gctx)
	defer coordinator.Stop()

	g.Go(func() error {
		if err := auditWorker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("audit worker: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting library shell", "addr", cfg.Addr, "api_url", cfg.APIBaseURL, "state_backend", cfg.State.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down library shell")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func buildState(ctx context.Context, cfg config.Config, log *slog.Logger) (localstate.Store, func(), error) {
	switch cfg.State.Backend {
	case config.StateBackendRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		log.Info("local state in redis", "profile", cfg.State.Profile)
		return localstate.NewRedis(client.Client, cfg.State.Profile), func() { _ = client.Close() }, nil
	case config.StateBackendMemory:
		log.Info("local state in memory")
		return localstate.NewInMemoryStore(), func() {}, nil
	default:
		store, err := localstate.OpenSQLite(ctx, cfg.State.SQLitePath, cfg.State.Profile)
		if err != nil {
			return nil, nil, fmt.Errorf("open local state: %w", err)
		}
		log.Info("local state in sqlite", "path", cfg.State.SQLitePath, "profile", cfg.State.Profile)
		return store, func() { _ = store.Close() }, nil
	}
}

func buildProvider(cfg config.Config, log *slog.Logger) identity.Provider {
	if cfg.Identity.Provider == config.IdentityProviderMemory {
		log.Warn("using in-memory identity provider; any credential signs in")
		return identity.NewInMemoryProvider()
	}
	return identity.NewTokenProvider(cfg.APIBaseURL, []byte(cfg.Identity.SigningKey),
		identity.WithIssuer(cfg.Identity.Issuer),
		identity.WithLogger(log),
	)
}
