package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clts "suitfeed/clients"
	"suitfeed/config"
	"suitfeed/internal/app"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// loadTimeout is the maximum time to wait for loading from gist
	loadTimeout = 30 * time.Second
)

// newLogger builds the process logger from LOG_LEVEL and LOG_ENCODING.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Encoding == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

func main() {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	// Load config from environment variables
	envConfig := config.Load()

	logger, err := newLogger(envConfig.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting suitfeed",
		zap.Bool("isProd", envConfig.IsProd),
		zap.String("commit", app.BuildCommit),
	)

	// Initialize clients (needed for Gist access)
	logger.Info("instantiating clients")
	clients := clts.NewClients(logger, envConfig)
	defer clients.Close()

	// Create LiveConfig with env config as initial value
	liveConfig := config.NewLiveConfig(envConfig)
	settingsManager := config.NewSettingsManager(logger, clients.SettingsGist, liveConfig)

	// Load settings from Gist if enabled
	if settingsManager.IsEnabled() {
		logger.Info("loading settings from gist", zap.String("gist_id", clients.SettingsGist.GetGistID()))
		loadCtx, loadCancel := context.WithTimeout(context.Background(), loadTimeout)
		cfg := settingsManager.LoadSettings(loadCtx, envConfig)
		loadCancel()
		if err := liveConfig.Update(cfg); err != nil {
			logger.Warn("failed to apply gist settings", zap.Error(err))
		}
	}

	if result := liveConfig.Get().Validate(); !result.Valid {
		for _, e := range result.Errors {
			logger.Error("invalid config", zap.String("field", e.Field), zap.String("message", e.Message))
		}
		logger.Fatal("refusing to start with invalid config")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	runner := app.NewRunner(clients, liveConfig, settingsManager)
	if err := runner.Run(ctx); err != nil {
		logger.Fatal("runner failed", zap.Error(err))
	}
}
