// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/auth/memory"
	"github.com/holomush/gatekeeper/internal/auth/postgres"
	"github.com/holomush/gatekeeper/internal/auth/redis"
	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/httpapi"
	"github.com/holomush/gatekeeper/internal/logging"
	"github.com/holomush/gatekeeper/internal/observability"
	"github.com/holomush/gatekeeper/internal/store"
)

const shutdownTimeout = 5 * time.Second

// ServeDeps contains injectable dependencies for the serve command.
// Nil fields use their defaults.
type ServeDeps struct {
	// Listen opens the API listener. Default: net.Listen.
	Listen func(network, address string) (net.Listener, error)

	// LogWriter receives log output. Default: os.Stderr.
	LogWriter io.Writer

	// Hasher digests passwords. Default: auth.NewArgon2idHasher.
	Hasher auth.PasswordHasher

	// OnReady is called with the API address once it accepts requests.
	OnReady func(apiAddr string)
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API",
		Long: `Start the HTTP API together with the metrics and health server.
Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, nil)
		},
	}
}

// backends holds the user store and session registry chosen by config.
type backends struct {
	users    auth.UserStore
	sessions auth.SessionRegistry
	ready    observability.ReadinessChecker
	closers  []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func pingReady(ping func(ctx context.Context) error) observability.ReadinessChecker {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return ping(ctx) == nil
	}
}

func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{}
	var checks []observability.ReadinessChecker

	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := store.Open(ctx, cfg.Database.DSN(), store.OpenOptions{Logger: logger})
		if err != nil {
			return nil, oops.With("operation", "open user store").Wrap(err)
		}
		b.closers = append(b.closers, pool.Close)
		b.users = postgres.NewUserStore(pool)
		checks = append(checks, pingReady(pool.Ping))
	default:
		b.users = memory.NewUserStore()
	}

	switch cfg.SessionBackend {
	case config.SessionStore:
		b.sessions = auth.NewStoreRegistry(b.users)
	case config.SessionRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("error closing redis client", "error", err)
			}
		})
		b.sessions = redis.NewRegistry(client, cfg.Redis.Prefix)
		checks = append(checks, pingReady(func(ctx context.Context) error { return client.Ping(ctx).Err() }))
	default:
		b.sessions = auth.NewMemoryRegistry()
	}

	b.ready = func() bool {
		for _, check := range checks {
			if !check() {
				return false
			}
		}
		return true
	}
	return b, nil
}

// runServe runs the API until ctx is cancelled or a server fails.
func runServe(ctx context.Context, cfg *config.Config, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.Listen == nil {
		deps.Listen = net.Listen
	}
	if deps.Hasher == nil {
		deps.Hasher = auth.NewArgon2idHasher()
	}

	logger := logging.NewLogger("gatekeeper", version, deps.LogWriter, logging.Options{Format: cfg.LogFormat})
	slog.SetDefault(logger)
	logger.Info("starting gatekeeper", "config", cfg.String())

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	svc, err := auth.NewService(b.users, b.sessions, deps.Hasher, auth.WithLogger(logger))
	if err != nil {
		return oops.With("operation", "create auth service").Wrap(err)
	}
	verifier, err := auth.NewVerifier(cfg.AuthType, auth.VerifierDeps{
		Users:      b.users,
		Sessions:   b.sessions,
		Hasher:     deps.Hasher,
		CookieName: cfg.SessionName,
		Logger:     logger,
	})
	if err != nil {
		return oops.With("operation", "create verifier").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, b.ready)
		obsServer.SetLogger(logger)
		auth.RegisterMetrics(obsServer.Registry())
		metrics = obsServer.Metrics()

		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, logger, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}
	defer func() {
		if obsServer == nil {
			return
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}()

	handler, err := httpapi.NewHandler(httpapi.Options{
		Service:       svc,
		Verifier:      verifier,
		CookieName:    cfg.SessionName,
		ExcludedPaths: cfg.ExcludedPaths,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		return oops.With("operation", "create API handler").Wrap(err)
	}

	listener, err := deps.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return oops.Code("API_LISTEN_FAILED").With("addr", cfg.ListenAddr).Wrap(err)
	}
	apiServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := apiServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	logger.Info("gatekeeper ready", "addr", listener.Addr().String(), "auth_type", cfg.AuthType)
	if deps.OnReady != nil {
		deps.OnReady(listener.Addr().String())
	}

	var runErr error
	select {
	case err := <-errChan:
		runErr = oops.Code("API_SERVE_FAILED").Wrap(err)
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping API server", "error", err)
	}

	logger.Info("shutdown complete")
	return runErr
}

// monitorServerErrors cancels ctx when errCh reports a failure. It exits
// on error, channel close or ctx cancellation.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
