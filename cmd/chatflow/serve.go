package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/cli"
	httpAdapter "github.com/aretw0/chatflow/pkg/adapters/http"
	"github.com/aretw0/chatflow/pkg/observability"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the event and session HTTP server",
	Long: `Starts the engine behind a JSON API. Inbound events are posted to /v1/events,
sessions are inspected under /v1/sessions and tenants can follow their
conversations live on /v1/tenants/{tenant}/stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		streams := httpAdapter.NewStreamManager(logger)
		stack, err := cli.BuildStack(cfg, logger, cli.WithNotifier(streams))
		if err != nil {
			return err
		}
		defer stack.Close()

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		if watching, err := stack.Flows.WatchInvalidation(sigCtx); err != nil {
			logger.Warn("Flow watcher unavailable, relying on cache expiry", "err", err)
		} else if watching {
			logger.Info("Watching flows for changes", "dir", cfg.FlowsDir)
		}

		api := &http.Server{
			Addr: cfg.HTTPAddr,
			Handler: httpAdapter.NewHandler(stack.Engine, stack.Sessions,
				httpAdapter.WithLogger(logger),
				httpAdapter.WithVersion(chatflow.Version),
				httpAdapter.WithFlows(stack.Flows),
				httpAdapter.WithStreams(streams),
				httpAdapter.WithMaxInputSize(cfg.MaxInputSize),
			),
		}
		servers := []*http.Server{api}
		if cfg.MetricsAddr != "" {
			servers = append(servers, &http.Server{
				Addr:    cfg.MetricsAddr,
				Handler: observability.Handler(stack.Registry),
			})
		}

		g, ctx := errgroup.WithContext(sigCtx)
		for _, srv := range servers {
			srv := srv
			g.Go(func() error {
				logger.Info("Listening", "address", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server %s: %w", srv.Addr, err)
				}
				return nil
			})
		}
		g.Go(func() error {
			<-ctx.Done()
			if sig := sigCtx.Signal(); sig != nil {
				logger.Info("Start shutdown", "signal", sig.String())
			}

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			var errs []error
			for _, srv := range servers {
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("Graceful shutdown did not complete", "address", srv.Addr, "timeout", shutdownTimeout, "err", err)
					errs = append(errs, srv.Close())
				}
			}
			return errors.Join(errs...)
		})

		if err := g.Wait(); err != nil {
			return err
		}
		logger.Info("chatflow server stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
