package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/udhaari/khata/internal/models"
)

const customerColumns = `id, owner_id, name, phone, balance, tag, due_date, version, created_at, last_activity`

const transactionColumns = `id, owner_id, customer_id, type, amount, effect, note, tx_date, created_at, updated_at`

// PostgresRepository stores customers and transactions in Postgres.
// A ledger batch is one sql.Tx with the customer row locked FOR UPDATE.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*models.Customer, error) {
	var c models.Customer
	var phone sql.NullString
	var due sql.NullTime
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &phone, &c.Balance, &c.Tag, &due, &c.Version, &c.CreatedAt, &c.LastActivity); err != nil {
		return nil, err
	}
	c.Phone = phone.String
	if due.Valid {
		d := due.Time
		c.DueDate = &d
	}
	return &c, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var note sql.NullString
	var date sql.NullTime
	if err := row.Scan(&t.ID, &t.OwnerID, &t.CustomerID, &t.Type, &t.Amount, &t.Effect, &note, &date, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Note = note.String
	if date.Valid {
		d := date.Time
		t.Date = &d
	}
	return &t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func notFoundOr(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.NotFound(kind, id)
	}
	return fmt.Errorf("query %s %s: %w", kind, id, err)
}

// lockFailed is notFoundOr for reads inside a batch: anything but a missing
// row aborts the write and is retryable.
func lockFailed(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.NotFound(kind, id)
	}
	return models.WriteFailure("lock "+kind+" "+id, err)
}

func (r *PostgresRepository) GetCustomer(ctx context.Context, ownerID, customerID string) (*models.Customer, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE owner_id = $1 AND id = $2`, ownerID, customerID)
	c, err := scanCustomer(row)
	if err != nil {
		return nil, notFoundOr(err, "customer", customerID)
	}
	return c, nil
}

func (r *PostgresRepository) ListCustomers(ctx context.Context, ownerID string) ([]models.Customer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE owner_id = $1
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	out := []models.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.OwnerID, c.Name, nullString(c.Phone), c.Balance, string(c.Tag), nullTime(c.DueDate), c.Version, c.CreatedAt, c.LastActivity)
	if err != nil {
		return models.WriteFailure("create customer", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateCustomerProfile(ctx context.Context, c *models.Customer) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $1, phone = $2, tag = $3, due_date = $4
		WHERE owner_id = $5 AND id = $6`,
		c.Name, nullString(c.Phone), string(c.Tag), nullTime(c.DueDate), c.OwnerID, c.ID)
	if err != nil {
		return models.WriteFailure("update customer", err)
	}
	return requireRow(result, "customer", c.ID)
}

func (r *PostgresRepository) DeleteCustomer(ctx context.Context, ownerID, customerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.WriteFailure("delete customer", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE owner_id = $1 AND customer_id = $2`, ownerID, customerID); err != nil {
		return models.WriteFailure("delete customer transactions", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM customers WHERE owner_id = $1 AND id = $2`, ownerID, customerID)
	if err != nil {
		return models.WriteFailure("delete customer", err)
	}
	if err := requireRow(result, "customer", customerID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return models.WriteFailure("delete customer", err)
	}
	return nil
}

func (r *PostgresRepository) GetTransaction(ctx context.Context, ownerID, customerID, txID string) (*models.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE owner_id = $1 AND customer_id = $2 AND id = $3`, ownerID, customerID, txID)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, notFoundOr(err, "transaction", txID)
	}
	return t, nil
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, ownerID, customerID string) ([]models.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE owner_id = $1 AND customer_id = $2
		ORDER BY created_at DESC, id DESC`, ownerID, customerID)
}

func (r *PostgresRepository) ListOwnerTransactions(ctx context.Context, ownerID string) ([]models.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC`, ownerID)
}

func (r *PostgresRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) RunInBatch(ctx context.Context, fn func(b Batch) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.WriteFailure("begin", err)
	}
	defer tx.Rollback()

	if err := fn(&pgBatch{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return models.WriteFailure("commit", err)
	}
	return nil
}

type pgBatch struct {
	tx *sql.Tx
}

func (b *pgBatch) LockCustomer(ctx context.Context, ownerID, customerID string) (*models.Customer, error) {
	row := b.tx.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE owner_id = $1 AND id = $2
		FOR UPDATE`, ownerID, customerID)
	c, err := scanCustomer(row)
	if err != nil {
		return nil, lockFailed(err, "customer", customerID)
	}
	return c, nil
}

func (b *pgBatch) SetBalance(ctx context.Context, c *models.Customer, balance models.Money, at time.Time) error {
	result, err := b.tx.ExecContext(ctx, `
		UPDATE customers
		SET balance = $1, last_activity = $2, version = version + 1
		WHERE owner_id = $3 AND id = $4 AND version = $5`,
		balance, at, c.OwnerID, c.ID, c.Version)
	if err != nil {
		return models.WriteFailure("update balance", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return models.WriteFailure("update balance", err)
	}
	if n == 0 {
		return fmt.Errorf("optimistic lock failed for customer %s: %w", c.ID, models.ErrConflict)
	}
	c.Balance = balance
	c.LastActivity = at
	c.Version++
	return nil
}

func (b *pgBatch) LockTransaction(ctx context.Context, ownerID, customerID, txID string) (*models.Transaction, error) {
	row := b.tx.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE owner_id = $1 AND customer_id = $2 AND id = $3
		FOR UPDATE`, ownerID, customerID, txID)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, lockFailed(err, "transaction", txID)
	}
	return t, nil
}

func (b *pgBatch) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.OwnerID, t.CustomerID, string(t.Type), t.Amount, t.Effect, nullString(t.Note), nullTime(t.Date), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return models.WriteFailure("insert transaction", err)
	}
	return nil
}

func (b *pgBatch) UpdateTransaction(ctx context.Context, t *models.Transaction) error {
	result, err := b.tx.ExecContext(ctx, `
		UPDATE transactions
		SET amount = $1, effect = $2, note = $3, tx_date = $4, updated_at = $5
		WHERE owner_id = $6 AND customer_id = $7 AND id = $8`,
		t.Amount, t.Effect, nullString(t.Note), nullTime(t.Date), t.UpdatedAt, t.OwnerID, t.CustomerID, t.ID)
	if err != nil {
		return models.WriteFailure("update transaction", err)
	}
	return requireRow(result, "transaction", t.ID)
}

func (b *pgBatch) DeleteTransaction(ctx context.Context, ownerID, customerID, txID string) error {
	result, err := b.tx.ExecContext(ctx, `
		DELETE FROM transactions
		WHERE owner_id = $1 AND customer_id = $2 AND id = $3`, ownerID, customerID, txID)
	if err != nil {
		return models.WriteFailure("delete transaction", err)
	}
	return requireRow(result, "transaction", txID)
}

func (b *pgBatch) SumEffects(ctx context.Context, ownerID, customerID string) (models.Money, error) {
	var sum models.Money
	err := b.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(effect), 0)
		FROM transactions
		WHERE owner_id = $1 AND customer_id = $2`, ownerID, customerID).Scan(&sum)
	if err != nil {
		return 0, models.WriteFailure("sum effects for "+customerID, err)
	}
	return sum, nil
}

func requireRow(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return models.WriteFailure("rows affected", err)
	}
	if n == 0 {
		return models.NotFound(kind, id)
	}
	return nil
}
