package repository

import (
	"context"
	"database/sql"

	"haritsetu/backend/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the entry.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, account_id, identifier, action, channel, outcome, ip, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, sql.NullString{String: a.AccountID, Valid: a.AccountID != ""}, a.Identifier, a.Action,
		a.Channel, a.Outcome, a.IP, sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}, a.CreatedAt,
	)
	return err
}

// ListRecent returns the newest entries.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, identifier, action, channel, outcome, ip, metadata, created_at
		 FROM audit_logs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a                   domain.AuditLog
			accountID, metadata sql.NullString
		)
		if err := rows.Scan(&a.ID, &accountID, &a.Identifier, &a.Action, &a.Channel, &a.Outcome, &a.IP, &metadata, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.AccountID = accountID.String
		a.Metadata = metadata.String
		out = append(out, &a)
	}
	return out, rows.Err()
}
