package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/worldsnap/country-snapshot-server/internal/api"
	"github.com/worldsnap/country-snapshot-server/internal/artifact"
	"github.com/worldsnap/country-snapshot-server/internal/config"
	"github.com/worldsnap/country-snapshot-server/internal/db"
	"github.com/worldsnap/country-snapshot-server/internal/httpclient"
	"github.com/worldsnap/country-snapshot-server/internal/refresh"
	"github.com/worldsnap/country-snapshot-server/internal/sources"
	"github.com/worldsnap/country-snapshot-server/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the country snapshot API server",
	Long: `Start the country snapshot API server.

Configuration comes from an optional YAML file (--config), CSNAP_* environment
variables, and built-in defaults, in that order of precedence. The database
section of the configuration is required to serve.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverIdleTimeout      = 60 * time.Second

	// The refresh endpoint performs two external fetches plus a transaction,
	// so request and write timeouts must comfortably exceed the fetch timeout
	serverRequestTimeout = 30 * time.Second
	serverWriteTimeout   = 35 * time.Second
)

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides config)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format)")
	serveCmd.Flags().Bool("watch-config", false, "Reload configuration when the file changes")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("watch-config", serveCmd.Flags().Lookup("watch-config")); err != nil {
		panic(err)
	}
}

// loadServeConfig loads configuration from the optional --config path
func loadServeConfig(configPath string) (*config.Config, error) {
	var opts []config.Option
	if configPath != "" {
		opts = append(opts, config.WithConfigPath(configPath))
	}
	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	configPath := viper.GetString("config")
	cfg, err := loadServeConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Database == nil {
		return fmt.Errorf("database configuration is required to serve")
	}

	address := viper.GetString("address")
	if address == "" {
		address = cfg.Address
	}

	slog.InfoContext(ctx, "Starting country snapshot API server",
		"address", address,
		"countries_url", cfg.CountriesURL,
		"exchange_rates_url", cfg.ExchangeRatesURL,
		"artifact_path", cfg.ArtifactPath)

	// Optional config file watcher for operational visibility of edits
	if configPath != "" && viper.GetBool("watch-config") {
		manager, err := config.NewManager(configPath)
		if err != nil {
			return fmt.Errorf("failed to create config manager: %w", err)
		}
		defer func() {
			_ = manager.Close()
		}()

		watchCtx, watchCancel := context.WithCancel(ctx)
		defer watchCancel()
		go func() {
			if err := manager.Watch(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Config watcher stopped", "error", err)
			}
		}()
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	snapshotStore := store.New(pool)

	fetchClient := httpclient.NewDefaultClient(cfg.FetchTimeout())
	orchestrator := refresh.NewOrchestrator(
		sources.NewCountriesClient(fetchClient, cfg.CountriesURL),
		sources.NewRatesClient(fetchClient, cfg.ExchangeRatesURL),
		refresh.NewEngine(refresh.NewRandomMultiplierSource()),
		snapshotStore,
		artifact.NewPNGRenderer(cfg.ArtifactPath),
	)

	router := api.NewServer(snapshotStore, orchestrator, cfg.ArtifactPath,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
	)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}
