package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/udhaari/khata/internal/metrics"
	"github.com/udhaari/khata/internal/models"
	"github.com/udhaari/khata/internal/repository"
)

const maxNoteLength = 500

// AddTransactionRequest is the input of LedgerService.AddTransaction.
type AddTransactionRequest struct {
	Type   models.TxType `json:"type" validate:"required,oneof=credit debit"`
	Amount models.Money  `json:"amount" validate:"required"`
	Note   string        `json:"note,omitempty" validate:"max=500"`
	Date   *time.Time    `json:"date,omitempty"`
}

// LedgerService records transactions against a customer. Each mutation is one
// repository batch: the transaction row and the balance delta commit together.
type LedgerService struct {
	repo       repository.Repository
	reconciler *Reconciler
	notifier   Notifier
	logger     zerolog.Logger
	audit      *AuditLogger
	metrics    *metrics.Metrics
	now        func() time.Time
	newID      func() string
}

func NewLedgerService(repo repository.Repository, reconciler *Reconciler, notifier Notifier, logger zerolog.Logger, m *metrics.Metrics) *LedgerService {
	return &LedgerService{
		repo:       repo,
		reconciler: reconciler,
		notifier:   notifier,
		logger:     logger.With().Str("component", "ledger").Logger(),
		audit:      NewAuditLogger(logger),
		metrics:    m,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// SetClock replaces the time source. Used by tests.
func (s *LedgerService) SetClock(now func() time.Time) {
	s.now = now
	s.audit.now = now
	s.reconciler.now = now
	s.reconciler.audit.now = now
}

func (s *LedgerService) AddTransaction(ctx context.Context, ownerID, customerID string, req AddTransactionRequest) (*models.Receipt, error) {
	receipt, err := s.addTransaction(ctx, ownerID, customerID, req)
	s.finish(ctx, "add", ownerID, customerID, receipt, err)
	return receipt, err
}

func (s *LedgerService) addTransaction(ctx context.Context, ownerID, customerID string, req AddTransactionRequest) (*models.Receipt, error) {
	if !req.Type.Valid() {
		return nil, models.Invalid("type", "must be credit or debit")
	}
	if !req.Amount.IsPositive() {
		return nil, models.Invalid("amount", "must be greater than zero")
	}
	note := strings.TrimSpace(req.Note)
	if utf8.RuneCountInString(note) > maxNoteLength {
		return nil, models.Invalid("note", fmt.Sprintf("must be at most %d characters", maxNoteLength))
	}
	effect, err := models.Effect(req.Type, req.Amount)
	if err != nil {
		return nil, models.Invalid("type", err.Error())
	}

	now := s.now()
	date := now
	if req.Date != nil && !req.Date.IsZero() {
		date = *req.Date
	}
	tx := &models.Transaction{
		ID:         s.newID(),
		OwnerID:    ownerID,
		CustomerID: customerID,
		Type:       req.Type,
		Amount:     req.Amount,
		Effect:     effect,
		Note:       note,
		Date:       &date,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var receipt *models.Receipt
	err = s.repo.RunInBatch(ctx, func(b repository.Batch) error {
		c, err := b.LockCustomer(ctx, ownerID, customerID)
		if err != nil {
			return err
		}
		if err := b.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		if err := s.reconciler.applyDelta(ctx, b, c, effect, now); err != nil {
			return err
		}
		receipt = newReceipt(tx.ID, c, effect, effect, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// EditTransaction changes amount, note or date. The balance moves by the difference
// between the new and the stored effect.
func (s *LedgerService) EditTransaction(ctx context.Context, ownerID, customerID, txID string, patch models.TransactionPatch) (*models.Receipt, error) {
	receipt, err := s.editTransaction(ctx, ownerID, customerID, txID, patch)
	s.finish(ctx, "edit", ownerID, customerID, receipt, err)
	return receipt, err
}

func (s *LedgerService) editTransaction(ctx context.Context, ownerID, customerID, txID string, patch models.TransactionPatch) (*models.Receipt, error) {
	if patch.Amount != nil && !patch.Amount.IsPositive() {
		return nil, models.Invalid("amount", "must be greater than zero")
	}
	if patch.Note != nil && utf8.RuneCountInString(strings.TrimSpace(*patch.Note)) > maxNoteLength {
		return nil, models.Invalid("note", fmt.Sprintf("must be at most %d characters", maxNoteLength))
	}

	now := s.now()
	var receipt *models.Receipt
	err := s.repo.RunInBatch(ctx, func(b repository.Batch) error {
		c, err := b.LockCustomer(ctx, ownerID, customerID)
		if err != nil {
			return err
		}
		t, err := b.LockTransaction(ctx, ownerID, customerID, txID)
		if err != nil {
			return err
		}

		if patch.Amount != nil {
			t.Amount = *patch.Amount
		}
		if patch.Note != nil {
			t.Note = strings.TrimSpace(*patch.Note)
		}
		if patch.Date != nil {
			d := *patch.Date
			t.Date = &d
		}
		newEffect, err := models.Effect(t.Type, t.Amount)
		if err != nil {
			return err
		}
		delta := newEffect.Sub(t.Effect)
		t.Effect = newEffect
		t.UpdatedAt = now

		if err := b.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		if err := s.reconciler.applyDelta(ctx, b, c, delta, now); err != nil {
			return err
		}
		receipt = newReceipt(t.ID, c, t.Effect, delta, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// DeleteTransaction removes the transaction and reverses its effect.
func (s *LedgerService) DeleteTransaction(ctx context.Context, ownerID, customerID, txID string) (*models.Receipt, error) {
	receipt, err := s.deleteTransaction(ctx, ownerID, customerID, txID, nil)
	s.finish(ctx, "delete", ownerID, customerID, receipt, err)
	return receipt, err
}

// undoAdd deletes the transaction of an add receipt, provided nothing else has
// written the customer's balance since that add committed.
func (s *LedgerService) undoAdd(ctx context.Context, ownerID string, added models.Receipt) (*models.Receipt, error) {
	receipt, err := s.deleteTransaction(ctx, ownerID, added.CustomerID, added.TransactionID, &added.Version)
	switch {
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrNotFound):
		err = fmt.Errorf("%w: %w", models.ErrUndoUnavailable, err)
	}
	s.finish(ctx, "undo", ownerID, added.CustomerID, receipt, err)
	return receipt, err
}

func (s *LedgerService) deleteTransaction(ctx context.Context, ownerID, customerID, txID string, expectVersion *int64) (*models.Receipt, error) {
	now := s.now()
	var receipt *models.Receipt
	err := s.repo.RunInBatch(ctx, func(b repository.Batch) error {
		c, err := b.LockCustomer(ctx, ownerID, customerID)
		if err != nil {
			return err
		}
		if expectVersion != nil && c.Version != *expectVersion {
			return fmt.Errorf("customer %s changed since version %d: %w", customerID, *expectVersion, models.ErrConflict)
		}
		t, err := b.LockTransaction(ctx, ownerID, customerID, txID)
		if err != nil {
			return err
		}
		if err := b.DeleteTransaction(ctx, ownerID, customerID, txID); err != nil {
			return err
		}
		delta := t.Effect.Neg()
		if err := s.reconciler.applyDelta(ctx, b, c, delta, now); err != nil {
			return err
		}
		receipt = newReceipt(t.ID, c, t.Effect, delta, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, ownerID, customerID, txID string) (*models.Transaction, error) {
	return s.repo.GetTransaction(ctx, ownerID, customerID, txID)
}

// ListTransactions returns the customer's ledger newest first, each line with the
// balance as it stood right after that entry. query filters case-insensitively
// on note or amount text; running balances are computed before filtering.
func (s *LedgerService) ListTransactions(ctx context.Context, ownerID, customerID, query string) ([]models.LedgerLine, error) {
	c, err := s.repo.GetCustomer(ctx, ownerID, customerID)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactions(ctx, ownerID, customerID)
	if err != nil {
		return nil, err
	}
	return RunningLedger(c.Balance, txs, query), nil
}

// RunningLedger walks txs (newest first) backwards from the current balance.
func RunningLedger(balance models.Money, txs []models.Transaction, query string) []models.LedgerLine {
	q := strings.ToLower(strings.TrimSpace(query))
	running := balance
	lines := make([]models.LedgerLine, 0, len(txs))
	for _, t := range txs {
		line := models.LedgerLine{Transaction: t, RunningBalance: running}
		running = running.Sub(t.Effect)
		if q == "" || MatchesQuery(t, q) {
			lines = append(lines, line)
		}
	}
	return lines
}

// MatchesQuery expects q already lower-cased.
func MatchesQuery(t models.Transaction, q string) bool {
	return strings.Contains(strings.ToLower(t.Note), q) ||
		strings.Contains(t.Amount.String(), q) ||
		strings.Contains(t.Amount.Display(), q)
}

func newReceipt(txID string, c *models.Customer, effect, delta models.Money, at time.Time) *models.Receipt {
	return &models.Receipt{
		TransactionID: txID,
		CustomerID:    c.ID,
		Effect:        effect,
		Delta:         delta,
		Balance:       c.Balance,
		Version:       c.Version,
		At:            at,
	}
}

func (s *LedgerService) finish(ctx context.Context, op, ownerID, customerID string, receipt *models.Receipt, err error) {
	s.metrics.Mutation(op, err)
	if err != nil {
		s.audit.LogError(op, ownerID, customerID, err)
		return
	}
	s.audit.LogMutation(op, ownerID, receipt)
	publishChange(ctx, s.notifier, s.logger, ownerID, customerID)
}
