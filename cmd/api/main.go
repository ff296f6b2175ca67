package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gatehouse.dev/internal/audit"
	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/config"
	"gatehouse.dev/internal/httpapi"
	"gatehouse.dev/internal/migrate"
	"gatehouse.dev/internal/obs"
	"gatehouse.dev/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gatehouse:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := obs.NewLogger(obs.LogConfig{Level: cfg.LogLevel, Development: cfg.LogDev, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := auth.NewService(store,
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithHasher(auth.NewBcryptHasher(cfg.BcryptCost)),
		auth.WithAdminRoles(cfg.AdminRoles...),
		auth.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}
	if err := auth.Bootstrap(ctx, svc, auth.BootstrapOptions{
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
		SeedDemo:      cfg.SeedDemo,
	}); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	go svc.Sessions().RunReaper(ctx, cfg.SessionReapInterval)

	api := httpapi.New(svc, httpapi.Options{
		Version:      version,
		CookieName:   cfg.CookieName,
		CookieSecure: cfg.CookieSecure,
		RateBurst:    cfg.RateBurst,
		RatePerSec:   cfg.RatePerSec,
		Logger:       logger,
		Audit:        audit.New(logger),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := httpapi.NewGRPC(svc, logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc listening", zap.String("addr", lis.Addr().String()))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", zap.Error(serr))
	}
	stopped := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcSrv.Stop()
	}
	logger.Info("stopped")
	return err
}

// openStore picks PostgreSQL when a DSN is configured, applying pending
// migrations, and the in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (auth.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		return auth.NewInMemory(), func() {}, nil
	}
	st, err := pg.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	applied, err := migrate.NewManager(st.DB(), nil, migrate.WithLogger(logger)).Up(ctx)
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("database ready", zap.Int("migrations_applied", len(applied)))
	return st, func() { _ = st.Close() }, nil
}
