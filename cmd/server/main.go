package main

import (
	"context"
	"log"

	"github.com/chambridge/sensor-data-exporter/api"
	"github.com/chambridge/sensor-data-exporter/internal/config"
	"github.com/chambridge/sensor-data-exporter/internal/credentials"
	"github.com/chambridge/sensor-data-exporter/internal/db"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	creds, err := credentials.Load(cfg.CredentialsPath, logger)
	if err != nil {
		logger.Fatal("Failed to load credentials", zap.Error(err))
	}

	driver, _ := db.ParseDriver(cfg.Driver)
	conn, err := db.Open(context.Background(), driver, creds)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer conn.Close()

	router := api.SetupRouter(conn, cfg, logger)
	logger.Info("Starting server", zap.String("address", cfg.ServerAddress), zap.String("driver", string(driver)))
	if err := router.Run(cfg.ServerAddress); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}
