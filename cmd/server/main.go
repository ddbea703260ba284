package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"

	"github.com/umar/agentmesh/internal/config"
	"github.com/umar/agentmesh/internal/handlers"
	"github.com/umar/agentmesh/internal/server"
	"github.com/umar/agentmesh/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentmesh",
		Short:        "Message and task relay for agents sharing a room",
		Version:      handlers.Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(newRoomCmd())
	return root
}

func setupLogger(cfg *config.Config, w io.Writer) {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogger(cfg, os.Stdout)

	slog.Info("starting agentmesh", "version", handlers.Version, "backend", cfg.StoreBackend)

	st, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		return err
	}
	slog.Info("store ready", "backend", cfg.StoreBackend)

	svc := service.New(st)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.NewRouter(svc, cfg.CORSOrigin),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			st.Close()
			os.Exit(1)
		}
	}()

	// The HTTP server drains before the store closes, so both run in one operation.
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"agentmesh": func(ctx context.Context) error {
				slog.Info("shutting down")
				shutdownErr := srv.Shutdown(ctx)
				if shutdownErr != nil {
					slog.Error("forced shutdown", "error", shutdownErr)
				}
				if err := st.Close(); err != nil {
					slog.Error("failed to close store", "error", err)
					return errors.Join(shutdownErr, err)
				}
				return shutdownErr
			},
		},
	)

	exitCode := <-wait
	if exitCode != 0 {
		return fmt.Errorf("shutdown finished with exit code %d", exitCode)
	}
	slog.Info("server stopped gracefully")
	return nil
}
