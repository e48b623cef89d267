package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rakhadi/vertex-proxy/internal/config"
	"github.com/rakhadi/vertex-proxy/internal/credentials"
	"github.com/rakhadi/vertex-proxy/internal/proxy"
)

func main() {
	cfg := config.Load()

	if cfg.ProjectID == "" {
		slog.Error("project ID is required (--project-id or GOOGLE_PROJECT_ID)")
		os.Exit(1)
	}
	// Fail fast on a broken bundle instead of surfacing it on the first chat
	// request. The decoded bundle is discarded here; only the gateway decodes
	// it again when minting tokens.
	bundle, err := credentials.Decode(cfg.Credentials)
	if err != nil {
		slog.Error("invalid service-account credentials", "error", err)
		os.Exit(1)
	}

	slog.Info("starting vertex-proxy",
		"listen", cfg.ListenAddr,
		"project", cfg.ProjectID,
		"location", cfg.Location,
		"service_account", bundle.ClientEmail,
		"default_model", cfg.DefaultModel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := proxy.New(cfg)
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	case err := <-srvErr:
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
