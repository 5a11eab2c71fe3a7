package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"skidoodle/watchparty/internal/config"
	"skidoodle/watchparty/internal/remote"
	"skidoodle/watchparty/internal/server"
	"skidoodle/watchparty/internal/store"
)

const healthTimeout = 5 * time.Second

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "watchparty",
	Short:         "Shared video queue and synchronized playback",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		c.SetupLogging()
		cfg = c
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the shared documents over HTTP and websocket",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe the local server's health endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
		defer cancel()

		url := "http://localhost:" + cfg.ServerPort
		if err := remote.New(url, nil).Health(ctx); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, healthcheckCmd, joinCmd, addCmd, skipCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	backend, err := store.Open(ctx, storeOptions())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.WithError(err).Warn("failed to close store")
		}
	}()

	srv := server.NewServer(backend, server.Options{
		Addr:           ":" + cfg.ServerPort,
		AllowedOrigins: cfg.AllowedOrigins,
		WatchInterval:  cfg.WatchInterval,
		Metrics:        cfg.Metrics,
	})
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func storeOptions() store.Options {
	return store.Options{
		Kind:        cfg.Store.Kind,
		DataDir:     cfg.Store.DataDir,
		RedisURL:    cfg.Store.RedisURL,
		RedisPrefix: cfg.Store.RedisPrefix,
		DatabaseURL: cfg.Store.DatabaseURL,
	}
}
