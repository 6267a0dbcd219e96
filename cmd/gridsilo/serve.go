package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gridsilo/internal/auth"
	"gridsilo/internal/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP upload service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.serve(cmd.Context())
		},
	}

	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	if err := cli.v.BindPFlag("addr", cmd.Flags().Lookup("listen")); err != nil {
		panic(err)
	}

	return cmd
}

func (cli *CLI) serve(ctx context.Context) error {
	backend, err := cli.openBackend(ctx, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer backend.Close()

	defaults, err := cli.cfg.UploadOptions()
	if err != nil {
		return err
	}

	cfg := server.Config{
		Backend:          backend,
		Defaults:         defaults,
		SessionCacheSize: cli.cfg.SessionCacheSize,
		MaxPatchBodySize: cli.cfg.MaxPatchBodySize,
	}
	if cli.cfg.Auth.Enabled() {
		cfg.Auth = auth.NewBasicAuthEngine(cli.cfg.Auth.Username, cli.cfg.Auth.Password)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create gridsilo server: %w", err)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cli.cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		slog.Info("Starting Gridsilo HTTP server", "addr", cli.cfg.Addr, "backend", cli.cfg.Backend)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}
