package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/udhaari/khata/internal/metrics"
	"github.com/udhaari/khata/internal/models"
	"github.com/udhaari/khata/internal/repository"
)

// CustomerSnapshot is the full customer-detail view delivered to watchers.
type CustomerSnapshot struct {
	Customer     models.Customer     `json:"customer"`
	Transactions []models.LedgerLine `json:"transactions"`
	Undo         *UndoState          `json:"undo,omitempty"`
}

// CustomersSnapshot is the full customer-list view delivered to watchers.
type CustomersSnapshot struct {
	Customers []models.Customer `json:"customers"`
	Totals    Totals            `json:"totals"`
}

// Watcher turns change notifications into refreshed snapshots. Every
// subscription delivers an initial snapshot, then one per notification, from
// a single goroutine, so callbacks never run concurrently.
type Watcher struct {
	repo     repository.Repository
	notifier Notifier
	sessions *SessionRegistry
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func NewWatcher(repo repository.Repository, notifier Notifier, sessions *SessionRegistry, logger zerolog.Logger, m *metrics.Metrics) *Watcher {
	return &Watcher{
		repo:     repo,
		notifier: notifier,
		sessions: sessions,
		logger:   logger.With().Str("component", "watcher").Logger(),
		metrics:  m,
	}
}

// WatchCustomer subscribes to one customer. The returned cancel func is idempotent.
// A snapshot error (for example models.ErrNotFound after a delete) is passed to fn;
// the subscription stays open until cancelled.
func (w *Watcher) WatchCustomer(ctx context.Context, ownerID, customerID string, fn func(*CustomerSnapshot, error)) (func(), error) {
	return w.watch(ctx, CustomerTopic(ownerID, customerID), func(ctx context.Context) {
		fn(w.customerSnapshot(ctx, ownerID, customerID))
	})
}

func (w *Watcher) WatchCustomers(ctx context.Context, ownerID string, fn func(*CustomersSnapshot, error)) (func(), error) {
	return w.watch(ctx, CustomersTopic(ownerID), func(ctx context.Context) {
		fn(w.customersSnapshot(ctx, ownerID))
	})
}

func (w *Watcher) watch(parent context.Context, topic string, deliver func(ctx context.Context)) (func(), error) {
	sub, err := w.notifier.Subscribe(parent, topic)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(parent)
	w.metrics.SubscriptionOpened()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			if err := sub.Close(); err != nil {
				w.logger.Warn().Err(err).Str("topic", topic).Msg("close subscription")
			}
			w.metrics.SubscriptionClosed()
		})
	}

	go func() {
		defer stop()
		deliver(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.Events():
				if !ok {
					return
				}
				if ctx.Err() != nil {
					return
				}
				deliver(ctx)
			}
		}
	}()
	return stop, nil
}

func (w *Watcher) customerSnapshot(ctx context.Context, ownerID, customerID string) (*CustomerSnapshot, error) {
	c, err := w.repo.GetCustomer(ctx, ownerID, customerID)
	if err != nil {
		return nil, err
	}
	txs, err := w.repo.ListTransactions(ctx, ownerID, customerID)
	if err != nil {
		return nil, err
	}
	snap := &CustomerSnapshot{Customer: *c, Transactions: RunningLedger(c.Balance, txs, "")}
	if w.sessions != nil {
		if sess, ok := w.sessions.Lookup(ownerID, customerID); ok {
			st := sess.UndoState()
			snap.Undo = &st
		}
	}
	return snap, nil
}

func (w *Watcher) customersSnapshot(ctx context.Context, ownerID string) (*CustomersSnapshot, error) {
	customers, err := w.repo.ListCustomers(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	customers = FilterCustomers(customers, CustomerFilter{View: ViewAll}, time.Time{})
	return &CustomersSnapshot{Customers: customers, Totals: ComputeTotals(customers)}, nil
}
