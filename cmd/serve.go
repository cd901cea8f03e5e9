// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pilot/internal/api"
	"github.com/xkilldash9x/pilot/internal/config"
	"github.com/xkilldash9x/pilot/internal/notify"
	"github.com/xkilldash9x/pilot/internal/observability"
	"github.com/xkilldash9x/pilot/internal/service"
)

// newServeCmd creates and configures the `serve` command.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the turn API and the notification stream over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}

			components, err := newComponentFactory().Create(ctx, cfg, nil, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			listener, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
			}
			return serve(ctx, cfg.Server, components, listener, logger)
		},
	}

	serveCmd.Flags().String("addr", "", "Listen address, e.g. :8080. (Overrides config/env)")
	serveCmd.Flags().Bool("desktop", false, "Enable the desktop backend. (Overrides config/env)")
	serveCmd.Flags().String("container", "", "Desktop container name or id. (Overrides config/env)")
	serveCmd.Flags().Bool("headless", true, "Run Chrome headless. (Overrides config/env)")
	serveCmd.Flags().String("remote", "", "DevTools websocket URL of an existing browser. (Overrides config/env)")

	return serveCmd
}

// serve runs the HTTP server, the websocket pump and the eager backends until
// ctx is done, then shuts the server down gracefully.
func serve(ctx context.Context, cfg config.ServerConfig, components *service.Components, listener net.Listener, logger *zap.Logger) error {
	wsManager := notify.NewWSManager(logger, components.Hub, cfg.AllowedOrigins)
	server := api.NewServer(cfg, api.Deps{
		Turns:    components.NewRuntime(),
		Health:   components.Router,
		State:    components.Router,
		Recorder: components.Metrics,
		Metrics:  components.Metrics.Handler(),
		Events:   wsManager.HandleWS,
	}, logger)

	httpServer := &http.Server{
		Handler:      server.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsManager.Run(gctx)
		return nil
	})

	g.Go(func() error {
		// An unavailable desktop degrades the service; its directives are
		// answered with not-ready responses and the start is retried.
		if err := components.Router.Start(gctx); err != nil {
			logger.Warn("Eager backend failed to start.", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Pilot API listening.", zap.String("addr", listener.Addr().String()))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		timeout := cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		logger.Info("Shutting down the API server.")
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
