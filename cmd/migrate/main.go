package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"bookshelf/internal/config"
	"bookshelf/internal/storage/sqldb"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using existing environment variables")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := sqldb.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	logger.Info("Connected to database", zap.String("driver", store.Driver()))
	if err := store.ConfigureGoose(); err != nil {
		logger.Fatal("Failed to configure migrations", zap.Error(err))
	}

	// Get command from arguments (default to "up")
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	db := store.DB()
	dir := store.Driver()

	logger.Info("Running migrations", zap.String("command", command))
	switch command {
	case "up":
		if err := goose.UpContext(ctx, db, dir); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		logger.Info("Migrations completed successfully")
	case "down":
		if err := goose.DownContext(ctx, db, dir); err != nil {
			logger.Fatal("Failed to rollback migration", zap.Error(err))
		}
		logger.Info("Rollback completed successfully")
	case "reset":
		if err := store.Reset(ctx); err != nil {
			logger.Fatal("Failed to reset database", zap.Error(err))
		}
		logger.Info("Database reset successfully")
	case "status":
		if err := goose.StatusContext(ctx, db, dir); err != nil {
			logger.Fatal("Failed to get migration status", zap.Error(err))
		}
	case "version":
		version, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			logger.Fatal("Failed to get version", zap.Error(err))
		}
		logger.Info("Current migration version", zap.Int64("version", version))
	default:
		logger.Fatal("Unknown command. Available commands: up, down, reset, status, version", zap.String("command", command))
	}
}
