package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/sciperf/internal/adapters/http/api"
	"github.com/okian/sciperf/internal/adapters/repository"
	"github.com/okian/sciperf/internal/config"
	"github.com/okian/sciperf/pkg/logger"
)

const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	flags := config.New()

	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the results in the output directory over HTTP",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(cmd, flags, serveOverrides())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.OutDir, "out-dir", flags.OutDir, "directory holding result files")
	f.StringVar(&flags.Addr, "addr", flags.Addr, "listen address")
	f.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "debug, info, warn or error")
	f.StringVar(&flags.LogFormat, "log-format", flags.LogFormat, "text or json")
	return cmd
}

// serveOverrides are the flags of the serve command.
func serveOverrides() map[string]override {
	o := commonOverrides()
	o["addr"] = func(cfg, flags *config.Config) { cfg.Addr = flags.Addr }
	return o
}

// newResultServer loads the result files of cfg.OutDir and returns the
// server exposing them.
func newResultServer(ctx context.Context, cfg *config.Config) (*http.Server, int, error) {
	store := repository.NewMemoryStore()
	n, err := repository.LoadDir(ctx, cfg.OutDir, store)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", api.ErrServe, err)
	}

	mux := http.NewServeMux()
	api.NewServer(store).Register(ctx, mux)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}, n, nil
}

// serve runs the result server until ctx is done.
func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Get().Named("serve")

	srv, n, err := newResultServer(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info(ctx, "results loaded", logger.String("dir", cfg.OutDir), logger.Int("runs", n))

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("%w: %w", api.ErrServe, err)
	}

	log.Info(ctx, "starting HTTP server", logger.String("addr", ln.Addr().String()))
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%w: %w", api.ErrServe, err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
		return fmt.Errorf("%w: %w", api.ErrServe, err)
	}
	<-errCh
	log.Info(ctx, "server stopped")
	return nil
}
