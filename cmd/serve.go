package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bryan-buckman/infovore/internal/config"
	"github.com/bryan-buckman/infovore/internal/database"
	"github.com/bryan-buckman/infovore/internal/feedworker"
	"github.com/bryan-buckman/infovore/internal/logger"
	"github.com/bryan-buckman/infovore/internal/server"
	"github.com/bryan-buckman/infovore/internal/source"
)

const shutdownTimeout = 15 * time.Second

var (
	flagListen string
	flagDev    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().StringVar(&flagListen, "listen", "", "override the listen address")
		c.Flags().BoolVar(&flagDev, "dev", false, "development mode: always regenerate feeds")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flagListen != "" {
		cfg.Listen = flagListen
	}
	if flagDev {
		cfg.ServeMode = config.ModeDevelopment
	}

	log := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	store, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer store.Close()

	client := &http.Client{Timeout: cfg.RequestTimeoutDuration()}
	registry := source.FromConfig(cfg.Sources, client).Reserve(server.ReservedRoutes()...)
	workers, err := registry.Workers(store, feedworker.Options{
		Mode:          cfg.ServeMode,
		CacheDuration: cfg.CacheTTL(),
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("building workers: %w", err)
	}
	for _, w := range workers {
		log.Info("route registered", "route", w.Identity().Route())
	}
	log.Info("cache ready",
		"database", store.DatabaseType(),
		"mode", cfg.ServeMode,
		"cache_duration", cfg.CacheTTL(),
	)

	srv := server.New(store, workers, server.Options{
		Logger:         log,
		RequestTimeout: cfg.RequestTimeoutDuration(),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(cfg.Listen)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
