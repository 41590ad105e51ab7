package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"haritsetu/backend/internal/account/domain"
)

const accountColumns = `id, identifier, phone, email, name, district, taluka, village, role, verified, created_at, updated_at`

const uniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an account repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByIdentifier returns the account whose identifier, phone or email equals the normalized
// identifier, or nil if not found. The sign-in identifier wins when two rows match.
func (r *PostgresRepository) GetByIdentifier(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE identifier = $1 OR phone = $1 OR email = $1
		 ORDER BY (identifier = $1) DESC
		 LIMIT 1`, id)
	return scanAccount(row)
}

// GetByID returns the account with the given id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, accountID string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	return scanAccount(row)
}

// Create inserts the account. The account must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.Identifier, nullString(a.Phone), nullString(a.Email), a.Name,
		a.District, a.Taluka, a.Village, string(a.Role), a.Verified, a.CreatedAt, a.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

// Ping checks the connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var (
		a            domain.Account
		phone, email sql.NullString
		role         string
	)
	err := row.Scan(&a.ID, &a.Identifier, &phone, &email, &a.Name, &a.District, &a.Taluka, &a.Village,
		&role, &a.Verified, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.Phone = phone.String
	a.Email = email.String
	a.Role = domain.Role(role)
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
