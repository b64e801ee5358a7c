package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrations returns the schema statements, one statement per string, in order.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id            TEXT PRIMARY KEY,
			owner_id      TEXT NOT NULL,
			name          TEXT NOT NULL CHECK (name <> ''),
			phone         TEXT,
			balance       BIGINT NOT NULL DEFAULT 0,
			tag           TEXT NOT NULL DEFAULT 'regular',
			due_date      DATE,
			version       BIGINT NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_owner ON customers(owner_id, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id          TEXT PRIMARY KEY,
			owner_id    TEXT NOT NULL,
			customer_id TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
			type        TEXT NOT NULL CHECK (type IN ('credit', 'debit')),
			amount      BIGINT NOT NULL CHECK (amount >= 0),
			effect      BIGINT NOT NULL,
			note        TEXT,
			tx_date     TIMESTAMPTZ,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(owner_id, customer_id, created_at DESC)`,
	}
}

// Migrate applies every migration statement inside one transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, stmt := range Migrations() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return tx.Commit()
}
