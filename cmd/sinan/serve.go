package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sinan/internal/web"
)

var serveWarm bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the processed table over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Bool("fast", true, "use the analytical engine when available")
	serveCmd.Flags().Bool("precomputed", true, "serve the precomputed artifact when present")
	serveCmd.Flags().BoolVar(&serveWarm, "warm", true, "build the table at startup instead of on the first request")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx)
	if err != nil {
		return err
	}
	service := newService(p)
	opts := buildOptions(cmd)
	server := web.NewServer(service, p.Registry(), opts, cfg.Server)

	if serveWarm {
		go func() {
			res, err := service.ProcessedTable(ctx, opts)
			if err != nil {
				slog.Warn("warm-up build failed; requests will retry", "error", err)
				return
			}
			logResult(res)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if status := service.Limiter().Status(); status.Active > 0 {
		slog.Info("waiting for builds to complete", "active", status.Active)
		if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
			slog.Warn("builds did not complete in time", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}
