package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/logging"
)

func main() {
	var configPath, envFile string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&envFile, "env", ".env", "Optional environment file")
	flag.Parse()

	if err := loadEnvFile(envFile); err != nil {
		logrus.WithError(err).Fatal("Failed to load environment file")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	logger := logging.New(logging.FromConfig(cfg))
	logger.WithFields(logrus.Fields{
		"mode":       cfg.Environment.Mode,
		"strategies": len(cfg.Strategies),
	}).Info("Starting order core")
	if !cfg.IsPaperTrading() {
		logger.Warn("Live mode configured; orders are still only constructed and recorded")
	}

	app, err := newApp(cfg, logger, nil, os.Stdout)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Order core stopped with error")
	}
	logger.Info("Order core stopped")
}

// loadEnvFile loads environment variables from a file when it exists.
func loadEnvFile(envFile string) error {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", envFile, err)
	}
	return godotenv.Load(envFile)
}
