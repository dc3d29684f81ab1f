package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"splitvault/config"
	"splitvault/core"
	"splitvault/observability/logging"
	"splitvault/rpc"
	"splitvault/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SPLITVAULT_ENV"))
	logger := logging.Setup("splitvaultd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", slog.Any("error", err))
		os.Exit(1)
	}

	admin, err := cfg.AdminAddress()
	if err != nil {
		logger.Error("invalid administrator address", slog.Any("error", err))
		os.Exit(1)
	}
	allocations, err := cfg.GenesisAllocations()
	if err != nil {
		logger.Error("invalid genesis allocations", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.String("dir", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node, err := core.NewNode(db, core.Genesis{Admin: admin, Allocations: allocations})
	if err != nil {
		logger.Error("failed to initialise ledger node", slog.Any("error", err))
		os.Exit(1)
	}

	auth := rpc.NewAuthenticator(cfg.Secret(), cfg.AuthIssuer, cfg.AuthAudience)
	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           rpc.NewServer(node, auth, cfg.RateLimitPerMinute).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting JSON-RPC server", slog.String("address", cfg.ListenAddress))
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", slog.Any("error", err))
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
