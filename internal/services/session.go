package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/udhaari/khata/internal/models"
)

// sessionIdleTimeout is how long a session without a pending undo is kept.
const sessionIdleTimeout = 5 * time.Minute

// Session is the customer-detail context of one owner: ledger mutations for a
// single customer plus the undo window for the most recent add.
type Session struct {
	OwnerID    string
	CustomerID string

	ledger *LedgerService
	window *UndoWindow
}

func newSession(ledger *LedgerService, ttl time.Duration, ownerID, customerID string) *Session {
	s := &Session{OwnerID: ownerID, CustomerID: customerID, ledger: ledger}
	s.window = NewUndoWindow(ttl, func(ctx context.Context, added models.Receipt) (*models.Receipt, error) {
		return ledger.undoAdd(ctx, ownerID, added)
	})
	s.window.now = func() time.Time { return ledger.now() }
	s.window.touched = ledger.now()
	s.window.onExpire = func() { s.publishUndo(context.Background()) }
	return s
}

// publishUndo tells customer watchers that the undo state moved. The ledger
// has already published the mutation itself, but before the window changed.
func (s *Session) publishUndo(ctx context.Context) {
	if s.ledger.notifier == nil {
		return
	}
	topic := CustomerTopic(s.OwnerID, s.CustomerID)
	if err := s.ledger.notifier.Publish(ctx, topic); err != nil {
		s.ledger.logger.Warn().Err(err).Str("topic", topic).Msg("publish undo state")
	}
}

func (s *Session) AddTransaction(ctx context.Context, req AddTransactionRequest) (*models.Receipt, error) {
	receipt, err := s.ledger.AddTransaction(ctx, s.OwnerID, s.CustomerID, req)
	if err != nil {
		return nil, err
	}
	s.window.Record(*receipt)
	s.publishUndo(ctx)
	return receipt, nil
}

func (s *Session) EditTransaction(ctx context.Context, txID string, patch models.TransactionPatch) (*models.Receipt, error) {
	receipt, err := s.ledger.EditTransaction(ctx, s.OwnerID, s.CustomerID, txID, patch)
	if err != nil {
		return nil, err
	}
	s.window.Forget()
	s.publishUndo(ctx)
	return receipt, nil
}

func (s *Session) DeleteTransaction(ctx context.Context, txID string) (*models.Receipt, error) {
	receipt, err := s.ledger.DeleteTransaction(ctx, s.OwnerID, s.CustomerID, txID)
	if err != nil {
		return nil, err
	}
	s.window.Forget()
	s.publishUndo(ctx)
	return receipt, nil
}

func (s *Session) Undo(ctx context.Context) (*models.Receipt, error) {
	receipt, err := s.window.Undo(ctx)
	s.ledger.metrics.Undo(err)
	return receipt, err
}

func (s *Session) UndoState() UndoState {
	return s.window.State()
}

func (s *Session) Close() {
	s.window.Stop()
}

// SessionRegistry keeps one Session per (owner, customer). Sessions with
// nothing to undo are evicted after sessionIdleTimeout.
type SessionRegistry struct {
	mu        sync.Mutex
	ledger    *LedgerService
	ttl       time.Duration
	idleAfter time.Duration
	sessions  map[string]*Session
}

func NewSessionRegistry(ledger *LedgerService, undoWindow time.Duration) *SessionRegistry {
	return &SessionRegistry{
		ledger:    ledger,
		ttl:       undoWindow,
		idleAfter: sessionIdleTimeout,
		sessions:  make(map[string]*Session),
	}
}

// Session returns the customer's session, creating it on first use.
// Creating a session also sweeps idle ones.
func (r *SessionRegistry) Session(ownerID, customerID string) *Session {
	r.mu.Lock()
	k := ownerID + "/" + customerID
	s, ok := r.sessions[k]
	if ok {
		r.mu.Unlock()
		return s
	}
	evicted := r.sweepLocked(r.ledger.now())
	s = newSession(r.ledger, r.ttl, ownerID, customerID)
	r.sessions[k] = s
	r.mu.Unlock()

	for _, old := range evicted {
		old.Close()
	}
	return s
}

func (r *SessionRegistry) sweepLocked(now time.Time) []*Session {
	var evicted []*Session
	for k, s := range r.sessions {
		since, idle := s.window.IdleSince()
		if idle && now.Sub(since) >= r.idleAfter {
			delete(r.sessions, k)
			evicted = append(evicted, s)
		}
	}
	return evicted
}

func (r *SessionRegistry) Lookup(ownerID, customerID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[ownerID+"/"+customerID]
	return s, ok
}

// Drop closes and forgets the customer's session, if any.
func (r *SessionRegistry) Drop(ownerID, customerID string) {
	r.mu.Lock()
	s, ok := r.sessions[ownerID+"/"+customerID]
	delete(r.sessions, ownerID+"/"+customerID)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// isRetryable reports errors after which the same call may be repeated safely.
func isRetryable(err error) bool {
	return errors.Is(err, models.ErrWriteFailure)
}
