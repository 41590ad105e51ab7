package repository

import (
	"context"
	"errors"

	"haritsetu/backend/internal/account/domain"
)

// ErrDuplicate is returned by Create when an account already uses the identifier, phone or email.
var ErrDuplicate = errors.New("account already exists")

// Repository defines persistence for accounts.
type Repository interface {
	// GetByIdentifier returns the account registered with id, or nil if none.
	// It returns an error only for storage failures, not for missing rows.
	GetByIdentifier(ctx context.Context, id string) (*domain.Account, error)
	GetByID(ctx context.Context, accountID string) (*domain.Account, error)
	// Create persists a. Returns ErrDuplicate if the identifier, phone or email is taken.
	Create(ctx context.Context, a *domain.Account) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
