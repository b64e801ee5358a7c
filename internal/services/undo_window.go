package services

import (
	"context"
	"sync"
	"time"

	"github.com/udhaari/khata/internal/models"
)

// UndoState is a read-only view of an UndoWindow.
type UndoState struct {
	Pending       bool         `json:"pending"`
	TransactionID string       `json:"transactionId,omitempty"`
	Effect        models.Money `json:"effect,omitempty"`
	ExpiresAt     *time.Time   `json:"expiresAt,omitempty"`
}

type undoFunc func(ctx context.Context, added models.Receipt) (*models.Receipt, error)

// UndoWindow holds at most one pending add that may still be reversed.
// States: Idle, or Pending(receipt, expiresAt). A new Record replaces the
// pending entry and its timer.
type UndoWindow struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	undo      undoFunc
	pending   *models.Receipt
	expiresAt time.Time
	expired   bool // set when the timer cleared a pending entry
	timer     *time.Timer
	gen       uint64
	touched   time.Time

	// onExpire runs after the timer clears a pending entry, outside the lock.
	onExpire func()
}

func NewUndoWindow(ttl time.Duration, undo undoFunc) *UndoWindow {
	return &UndoWindow{ttl: ttl, now: time.Now, undo: undo}
}

// Record moves the window to Pending for r and restarts the expiry timer.
func (w *UndoWindow) Record(r models.Receipt) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopTimerLocked()
	w.pending = &r
	w.expired = false
	w.touched = w.now()
	w.expiresAt = w.touched.Add(w.ttl)
	gen := w.gen
	w.timer = time.AfterFunc(w.ttl, func() { w.expire(gen) })
}

func (w *UndoWindow) expire(gen uint64) {
	w.mu.Lock()
	if w.gen != gen || w.pending == nil {
		w.mu.Unlock()
		return
	}
	w.pending = nil
	w.expired = true
	w.timer = nil
	w.touched = w.now()
	onExpire := w.onExpire
	w.mu.Unlock()

	if onExpire != nil {
		onExpire()
	}
}

// Forget returns to Idle without side effects. The transaction stays.
func (w *UndoWindow) Forget() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopTimerLocked()
	w.pending = nil
	w.expired = false
	w.touched = w.now()
}

// Undo reverses the pending add. Outside the window it returns
// models.ErrUndoExpired or models.ErrUndoUnavailable and changes nothing.
// A write failure keeps the entry pending so the caller may retry.
func (w *UndoWindow) Undo(ctx context.Context) (*models.Receipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending == nil {
		if w.expired {
			w.expired = false
			return nil, models.ErrUndoExpired
		}
		return nil, models.ErrUndoUnavailable
	}
	if !w.now().Before(w.expiresAt) {
		w.stopTimerLocked()
		w.pending = nil
		w.touched = w.now()
		return nil, models.ErrUndoExpired
	}

	receipt, err := w.undo(ctx, *w.pending)
	if err != nil && isRetryable(err) {
		return nil, err
	}
	w.stopTimerLocked()
	w.pending = nil
	w.touched = w.now()
	return receipt, err
}

func (w *UndoWindow) State() UndoState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil || !w.now().Before(w.expiresAt) {
		return UndoState{}
	}
	exp := w.expiresAt
	return UndoState{
		Pending:       true,
		TransactionID: w.pending.TransactionID,
		Effect:        w.pending.Effect,
		ExpiresAt:     &exp,
	}
}

// IdleSince reports whether nothing is pending and, if so, when the window
// last changed state.
func (w *UndoWindow) IdleSince() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.touched, w.pending == nil
}

// Stop cancels the timer and drops any pending entry.
func (w *UndoWindow) Stop() {
	w.Forget()
}

func (w *UndoWindow) stopTimerLocked() {
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
