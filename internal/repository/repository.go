// Package repository is the storage collaborator of the ledger: customer
// documents, their transaction sub-collections, ordered queries and atomic
// multi-record write batches.
package repository

import (
	"context"
	"time"

	"github.com/udhaari/khata/internal/models"
)

// Repository provides reads, profile writes and atomic ledger batches.
// All records are scoped by ownerID (the opaque tenant key).
type Repository interface {
	GetCustomer(ctx context.Context, ownerID, customerID string) (*models.Customer, error)
	ListCustomers(ctx context.Context, ownerID string) ([]models.Customer, error)
	CreateCustomer(ctx context.Context, c *models.Customer) error
	UpdateCustomerProfile(ctx context.Context, c *models.Customer) error
	// DeleteCustomer removes the customer and all of its transactions.
	DeleteCustomer(ctx context.Context, ownerID, customerID string) error

	GetTransaction(ctx context.Context, ownerID, customerID, txID string) (*models.Transaction, error)
	// ListTransactions returns the customer's transactions, newest first by creation time.
	ListTransactions(ctx context.Context, ownerID, customerID string) ([]models.Transaction, error)
	ListOwnerTransactions(ctx context.Context, ownerID string) ([]models.Transaction, error)

	// RunInBatch runs fn as one atomic unit. If fn or the commit fails, nothing is applied.
	RunInBatch(ctx context.Context, fn func(b Batch) error) error
}

// Batch is the write side of one atomic unit.
type Batch interface {
	// LockCustomer reads the customer and holds it until the batch ends.
	LockCustomer(ctx context.Context, ownerID, customerID string) (*models.Customer, error)
	// SetBalance writes balance and lastActivity, guarded by c.Version.
	// It fails with models.ErrConflict when the stored version differs, and bumps c.Version on success.
	SetBalance(ctx context.Context, c *models.Customer, balance models.Money, at time.Time) error

	LockTransaction(ctx context.Context, ownerID, customerID, txID string) (*models.Transaction, error)
	InsertTransaction(ctx context.Context, t *models.Transaction) error
	UpdateTransaction(ctx context.Context, t *models.Transaction) error
	DeleteTransaction(ctx context.Context, ownerID, customerID, txID string) error
	// SumEffects folds the effect of every transaction of the customer.
	SumEffects(ctx context.Context, ownerID, customerID string) (models.Money, error)
}
