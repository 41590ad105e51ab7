// seed inserts the demo farmer account for local testing: go run ./cmd/seed.
// Idempotent: skips the insert if the demo identifier already has an account.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"

	"haritsetu/backend/internal/account/domain"
	accountrepo "haritsetu/backend/internal/account/repository"
	"haritsetu/backend/internal/config"
	"haritsetu/backend/internal/db"
)

const (
	demoAccountID  = "demo-farmer-001"
	demoIdentifier = "+919876543210"
)

// demoAccount is the farmer that logs in with the documented demo number.
func demoAccount(now time.Time) *domain.Account {
	return &domain.Account{
		ID:         demoAccountID,
		Identifier: demoIdentifier,
		Phone:      demoIdentifier,
		Name:       "Demo Farmer",
		District:   "Pune",
		Taluka:     "Haveli",
		Village:    "Wagholi",
		Role:       domain.RoleFarmer,
		Verified:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// seed creates the demo account unless it exists. Returns whether it inserted.
func seed(ctx context.Context, repo accountrepo.Repository, now time.Time) (bool, error) {
	existing, err := repo.GetByIdentifier(ctx, demoIdentifier)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	if err := repo.Create(ctx, demoAccount(now)); err != nil {
		if errors.Is(err, accountrepo.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config")
	}
	logger := cfg.NewLogger("seed")
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db open")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	inserted, err := seed(ctx, accountrepo.NewPostgresRepository(conn), time.Now().UTC())
	if err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}
	if !inserted {
		logger.Info().Str("identifier", demoIdentifier).Msg("demo account already exists; skipping")
		return
	}
	logger.Info().Str("identifier", demoIdentifier).Str("account_id", demoAccountID).Msg("demo account created")
}
