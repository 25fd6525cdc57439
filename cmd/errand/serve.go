package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/errand/internal/cache"
	"github.com/dukerupert/errand/internal/config"
	"github.com/dukerupert/errand/internal/database"
	"github.com/dukerupert/errand/internal/logging"
	"github.com/dukerupert/errand/internal/model"
	"github.com/dukerupert/errand/internal/server"
	"github.com/dukerupert/errand/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  "Starts the task API, the realtime feed and the push dispatcher.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides ERRAND_ADDR)")
	serveCmd.Flags().String("db", "", "SQLite database path (overrides ERRAND_DB_PATH)")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Addr = addr
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.DBPath = db
	}
	return cfg, nil
}

func profileCache(cfg config.Config, logger *slog.Logger) (cache.Cache[string, model.Profile], func(), error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemory[string, model.Profile](cfg.ProfileTTL, nil), func() {}, nil
	}
	client, err := cache.NewRedisClient(cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("profile cache using redis", "addr", cfg.RedisAddr)
	return cache.NewRedis[model.Profile](client, "errand:profile:", cfg.ProfileTTL), client.Close, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	profiles, closeCache, err := profileCache(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	srv := server.New(db, server.Config{
		JWTSecret:       cfg.JWTSecret,
		TokenTTL:        cfg.TokenTTL,
		RateLimit:       cfg.RateLimit,
		AudienceMax:     cfg.AudienceMax,
		AllowedOrigins:  cfg.AllowedOrigins,
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		VAPIDSubject:    cfg.VAPIDSubject,
		S3: storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		},
	}, profiles, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv.Start(ctx)
	if srv.Dispatcher() == nil {
		logger.Info("push notifications disabled (no VAPID keys)")
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			srv.Stop()
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	srv.Stop()
	logger.Info("server stopped")
	return nil
}
