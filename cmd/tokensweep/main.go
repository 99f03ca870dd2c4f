package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"learnhub/internal/config"
	"learnhub/internal/db"
	"learnhub/internal/service"
)

// tokensweep borra tokens vencidos de todos los tipos. Es opcional: la
// validacion ya rechaza tokens vencidos.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	backend, err := db.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer backend.Close()

	tokens := service.NewTokenService(logger, backend.Store, cfg.VerificationTokenTTL, cfg.ResetTokenTTL, cfg.TwoFactorTokenTTL)
	removed, err := tokens.SweepExpired(ctx)
	if err != nil {
		logger.Fatal("sweep expired tokens", zap.Error(err))
	}

	var total int64
	for _, n := range removed {
		total += n
	}
	logger.Info("token sweep done", zap.Int64("removed", total))
}
