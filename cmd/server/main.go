package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"syscall"
	"time"

	"apexdispatch/internal/auth"
	"apexdispatch/internal/config"
	"apexdispatch/internal/database"
	"apexdispatch/internal/handlers"
	"apexdispatch/internal/logging"
	"apexdispatch/internal/platforms"
	"apexdispatch/internal/scheduler"
	"apexdispatch/internal/services"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	cfg  *config.Config
	vcfg *viper.Viper

	flagConfigFilePath string
)

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "YAML config file (default $DISPATCHER_CONFIG)")
	rootCmd.SilenceErrors = true
	rootCmd.PersistentPreRunE = initDispatcher

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		logging.Log.WithError(err).Error("dispatcher failed")
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "dispatcher",
	Short:        "Dispatch processing jobs to openEO and OGC API Processes platforms",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the HTTP and websocket API",
	RunE:  doServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "apply the database schema and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := database.New(cmd.Context(), cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.RunMigrations(cmd.Context()); err != nil {
			return err
		}
		logging.Log.Info("Migrations applied")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "print the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg.Redacted()); err != nil {
			return fmt.Errorf("encoding configuration: %w", err)
		}
		return enc.Close()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("dispatcher: version info not available")
			return
		}
		fmt.Printf("dispatcher: %s\n", info.Main.Version)
		fmt.Printf("go:         %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:     %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:       %s\n", s.Value)
			}
		}
	},
}

func initDispatcher(cmd *cobra.Command, _ []string) error {
	if cmd == versionCmd {
		return nil
	}
	var err error
	cfg, vcfg, err = config.Load(flagConfigFilePath)
	if err != nil {
		return err
	}
	logging.Init(cfg.LogLevel)
	return nil
}

func doServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logging.Log

	db, err := database.New(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		log.WithError(err).Warn("Failed to run migrations")
	}

	backends := config.NewBackendStore(cfg.AllBackends())
	config.WatchConfig(vcfg, backends)
	if cfg.BackendsFile != "" {
		if err := config.WatchBackendsFile(ctx, cfg.BackendsFile, cfg.Backends, backends); err != nil {
			log.WithError(err).Warn("Backends file will not be reloaded")
		}
	}

	registry := platforms.NewRegistry()
	platforms.RegisterDefaults(registry, platforms.Deps{
		Backends:  backends,
		Exchanger: auth.NewTokenExchanger(cfg.Keycloak, cfg.PlatformTimeout),
		Timeout:   cfg.PlatformTimeout,
	})

	processing := services.NewProcessingService(db, registry)
	upscaling := services.NewUpscalingService(db, processing, registry)

	if cfg.Reconcile.Interval > 0 {
		reconciler := scheduler.New(db, processing, upscaling, cfg.Reconcile)
		if err := reconciler.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := reconciler.Stop(); err != nil {
				log.WithError(err).Error("Stopping reconciler failed")
			}
		}()
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Users:          auth.NewAuthenticator(cfg.JWTSecret),
		Processing:     processing,
		Upscaling:      upscaling,
		DB:             db,
		StreamInterval: cfg.StreamInterval,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).WithField("platforms", registry.Labels()).Info("Server starting")
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Graceful shutdown failed")
	}
	upscaling.Wait()
	return nil
}
