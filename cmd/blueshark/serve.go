package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/PabloGalante/blue-shark/internal/adapters/http"
	"github.com/PabloGalante/blue-shark/internal/observability"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST and WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				c.cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, c.cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			return serve(ctx, ":"+c.cfg.Port, httpadapter.NewServer(a.svc, a.bus))
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides BLUESHARK_PORT)")
	return cmd
}

// serve runs srv until ctx is done, then drains in-flight requests.
func serve(ctx context.Context, addr string, handler http.Handler) error {
	log := observability.Logger()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Blue Shark API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
