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

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mes-execution-backend/config"
	"mes-execution-backend/internal/api"
	"mes-execution-backend/internal/audit"
	"mes-execution-backend/internal/db"
	"mes-execution-backend/internal/execution"
	"mes-execution-backend/internal/monitor"
	"mes-execution-backend/internal/refdata"
	"mes-execution-backend/internal/store"
)

var skipMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the downtime monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()
		return serve(cfg, logger)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not run schema migrations on startup")
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	gin.SetMode(cfg.Server.Mode)

	var (
		gormDB *gorm.DB
		err    error
	)
	if skipMigrate {
		gormDB, err = db.Open(&cfg.Database)
	} else {
		gormDB, err = db.Init(&cfg.Database, logger)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("Database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	publisher, closePublisher := initPublisher(ctx, cfg.Redis, logger)
	defer closePublisher()

	dispatcher := audit.NewDispatcher(cfg.Audit.WorkerPoolSize, cfg.Audit.QueueSize, appStore, publisher, logger.Named("audit"))
	dispatcher.Start(ctx)

	exec := execution.New(execution.Dependencies{
		Store:   appStore,
		Refs:    refdata.NewGormChecker(gormDB, time.Minute),
		Emitter: dispatcher,
		Config:  cfg.Execution,
		Log:     logger,
	})

	monitorSvc := monitor.NewService(cfg.Monitor, appStore, dispatcher, logger.Named("monitor"))
	go monitorSvc.Run(ctx)

	router := api.NewRouter(exec, gormDB, cfg, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("Shutdown signal received, stopping services...")
	case err := <-serverErr:
		logger.Error("HTTP server failed", zap.Error(err))
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", zap.Error(err))
	}
	cancel()
	if n := dispatcher.Drain(); n > 0 {
		logger.Info("Delivered queued audit records", zap.Int("count", n))
	}

	logger.Info("Server gracefully stopped")
	return nil
}

// initPublisher connects to redis when an address is configured and falls back
// to logging domain events otherwise.
func initPublisher(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (audit.Publisher, func()) {
	if cfg.Addr == "" {
		logger.Info("No redis address configured, domain events go to the log")
		return audit.NewLogPublisher(logger.Named("events")), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis is not reachable, publishing will be retried per event", zap.String("addr", cfg.Addr), zap.Error(err))
	}
	return audit.NewRedisPublisher(client, cfg.ChannelPrefix), func() { client.Close() }
}
