// Command server runs the dataset ingestion HTTP API and the temp-bucket
// reconciliation scheduler.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"agent-bff/internal/app"
	"agent-bff/internal/config"
	internaldb "agent-bff/internal/db"
)

var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	listen := flags.String("listen", "", "listen address (overrides LISTEN_ADDR)")
	showVersion := flags.Bool("version", false, "print the version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Println(version)
		return nil
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pools, err := internaldb.Open(ctx, cfg.MetaDBPath, 0)
	if err != nil {
		return err
	}
	defer pools.Close() //nolint:errcheck
	schemaVersion, err := internaldb.Migrate(ctx, pools.Write)
	if err != nil {
		return err
	}
	logger.Info("task store ready", "path", cfg.MetaDBPath, "schema_version", schemaVersion)

	a, err := app.New(ctx, app.Deps{Cfg: cfg, Pools: pools, Logger: logger})
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http api listening", "addr", cfg.ListenAddr, "version", version,
			"try", "curl http://"+curlHostForListenAddr(cfg.ListenAddr)+"/healthz")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.RateLimiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// curlHostForListenAddr turns a listen address into a host:port usable from
// the local machine.
func curlHostForListenAddr(listenAddr string) string {
	addr := strings.TrimSpace(listenAddr)
	if addr == "" {
		return "localhost:8080"
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
