package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ambulance-dispatch-backend/config"
	"ambulance-dispatch-backend/internal/db"
	"ambulance-dispatch-backend/internal/logging"
)

const (
	shutdownTimeout  = 5 * time.Second
	limiterIdleAfter = 10 * time.Minute
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "dispatchd",
		Short: "Ambulance dispatch and tracking backend",
		Long: `Books ambulances to the nearest hospital, ingests live location pings,
drives each request through its status lifecycle and streams updates to
dispatchers and patients.`,
		SilenceUsage: true,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "./config/config.yaml" // Default path for local development
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "Path to the YAML configuration file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	log := logging.New(&cfg.Logger)
	log.WithField("path", configPath).Info("configuration loaded successfully")
	return cfg, log, nil
}

// serveCmd runs the HTTP API, the reconciliation loop and the push relay.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			a.start(ctx)

			server := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
				Handler: a.router,
			}

			serverErr := make(chan error, 1)
			go func() {
				log.WithField("port", cfg.Server.Port).Info("HTTP server starting")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-stop:
				log.WithField("signal", sig.String()).Info("Shutdown signal received, stopping services...")
			case err := <-serverErr:
				log.WithError(err).Error("HTTP server failed")
				cancel()
				a.close()
				return err
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Error("HTTP server shutdown")
			}
			cancel()
			a.close()

			log.Info("Server gracefully stopped")
			return nil
		},
	}
}

// migrateCmd creates or updates the schema and exits.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if _, err := db.Init(&cfg.Database, log); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			return nil
		},
	}
}

// reconcileCmd runs the promotion pass outside the server, e.g. from cron.
func reconcileCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Promote requests whose estimated completion time has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if once {
				sum := a.reconciler.ReconcileOnce(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d promoted=%d skipped=%d failed=%d\n",
					sum.Scanned, sum.Promoted, sum.Skipped, sum.Failed)
				return nil
			}
			a.reconciler.Run(ctx)
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single pass and exit")
	return cmd
}
