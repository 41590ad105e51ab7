package repository

import (
	"context"
	"sync"

	"haritsetu/backend/internal/account/domain"
)

// MemoryRepository keeps accounts in process. Used when DATABASE_URL is unset and in tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	byID      map[string]*domain.Account
	byIdent   map[string]string
	byContact map[string]string
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[string]*domain.Account),
		byIdent:   make(map[string]string),
		byContact: make(map[string]string),
	}
}

// GetByIdentifier matches id against the sign-in identifier and the stored phone and email.
func (r *MemoryRepository) GetByIdentifier(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	accountID, ok := r.byIdent[id]
	if !ok {
		accountID, ok = r.byContact[id]
	}
	if !ok {
		return nil, nil
	}
	a := *r.byID[accountID]
	return &a, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, accountID string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[accountID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) Create(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := r.byIdent[a.Identifier]; ok {
		return ErrDuplicate
	}
	for _, c := range []string{a.Phone, a.Email} {
		if c == "" {
			continue
		}
		if _, ok := r.byContact[c]; ok {
			return ErrDuplicate
		}
	}
	cp := *a
	r.byID[a.ID] = &cp
	r.byIdent[a.Identifier] = a.ID
	for _, c := range []string{a.Phone, a.Email} {
		if c != "" {
			r.byContact[c] = a.ID
		}
	}
	return nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }
