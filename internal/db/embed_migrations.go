package db

import "embed"

// MigrationFS embeds the accounts and audit_logs schema migrations. Applied by cmd/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
