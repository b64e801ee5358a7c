package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/udhaari/khata/internal/metrics"
	"github.com/udhaari/khata/internal/models"
	"github.com/udhaari/khata/internal/repository"
)

// Drift compares a customer's cached balance with the replayed ledger.
type Drift struct {
	CustomerID string       `json:"customerId"`
	Cached     models.Money `json:"cached"`
	Ledger     models.Money `json:"ledger"`
	Difference models.Money `json:"difference"` // Ledger - Cached
	Repaired   bool         `json:"repaired"`
}

func (d Drift) Consistent() bool { return d.Difference.IsZero() }

// Reconciler owns customer.balance. Every balance write in the service layer
// goes through applyDelta; Verify and Repair replay the ledger.
type Reconciler struct {
	repo     repository.Repository
	notifier Notifier
	logger   zerolog.Logger
	audit    *AuditLogger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewReconciler(repo repository.Repository, notifier Notifier, logger zerolog.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		repo:     repo,
		notifier: notifier,
		logger:   logger.With().Str("component", "reconciler").Logger(),
		audit:    NewAuditLogger(logger),
		metrics:  m,
		now:      time.Now,
	}
}

// applyDelta adds delta to the locked customer inside the caller's batch.
// A zero delta still refreshes lastActivity.
func (r *Reconciler) applyDelta(ctx context.Context, b repository.Batch, c *models.Customer, delta models.Money, at time.Time) error {
	return b.SetBalance(ctx, c, c.Balance.Add(delta), at)
}

// ApplyDelta applies delta to the customer's balance in its own batch.
func (r *Reconciler) ApplyDelta(ctx context.Context, ownerID, customerID string, delta models.Money) (*models.Customer, error) {
	var out *models.Customer
	err := r.repo.RunInBatch(ctx, func(b repository.Batch) error {
		c, err := b.LockCustomer(ctx, ownerID, customerID)
		if err != nil {
			return err
		}
		if err := r.applyDelta(ctx, b, c, delta, r.now()); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishChange(ctx, r.notifier, r.logger, ownerID, customerID)
	return out, nil
}

// RecomputeFromLedger sums the effect of every live transaction of the customer.
func (r *Reconciler) RecomputeFromLedger(ctx context.Context, ownerID, customerID string) (models.Money, error) {
	txs, err := r.repo.ListTransactions(ctx, ownerID, customerID)
	if err != nil {
		return 0, err
	}
	var sum models.Money
	for _, t := range txs {
		sum = sum.Add(t.Effect)
	}
	return sum, nil
}

// Verify reports drift without writing anything.
func (r *Reconciler) Verify(ctx context.Context, ownerID, customerID string) (*Drift, error) {
	c, err := r.repo.GetCustomer(ctx, ownerID, customerID)
	if err != nil {
		return nil, err
	}
	sum, err := r.RecomputeFromLedger(ctx, ownerID, customerID)
	if err != nil {
		return nil, err
	}
	d := &Drift{CustomerID: customerID, Cached: c.Balance, Ledger: sum, Difference: sum.Sub(c.Balance)}
	if !d.Consistent() {
		r.metrics.Drift()
		r.logger.Warn().Str("owner_id", ownerID).Str("customer_id", customerID).
			Str("cached", c.Balance.String()).Str("ledger", sum.String()).Msg("balance drift detected")
	}
	return d, nil
}

// VerifyOwner checks every customer of the owner against one scan of the owner's transactions.
func (r *Reconciler) VerifyOwner(ctx context.Context, ownerID string) ([]Drift, error) {
	customers, err := r.repo.ListCustomers(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	txs, err := r.repo.ListOwnerTransactions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	sums := make(map[string]models.Money, len(customers))
	for _, t := range txs {
		sums[t.CustomerID] = sums[t.CustomerID].Add(t.Effect)
	}

	drifts := []Drift{}
	for _, c := range customers {
		d := Drift{CustomerID: c.ID, Cached: c.Balance, Ledger: sums[c.ID], Difference: sums[c.ID].Sub(c.Balance)}
		if !d.Consistent() {
			r.metrics.Drift()
			drifts = append(drifts, d)
		}
	}
	return drifts, nil
}

// Repair sets the cached balance to the replayed sum in one batch.
func (r *Reconciler) Repair(ctx context.Context, ownerID, customerID string) (*Drift, error) {
	var d *Drift
	err := r.repo.RunInBatch(ctx, func(b repository.Batch) error {
		c, err := b.LockCustomer(ctx, ownerID, customerID)
		if err != nil {
			return err
		}
		sum, err := b.SumEffects(ctx, ownerID, customerID)
		if err != nil {
			return err
		}
		d = &Drift{CustomerID: customerID, Cached: c.Balance, Ledger: sum, Difference: sum.Sub(c.Balance)}
		if d.Consistent() {
			return nil
		}
		if err := r.applyDelta(ctx, b, c, d.Difference, r.now()); err != nil {
			return err
		}
		d.Repaired = true
		return nil
	})
	r.metrics.Mutation("repair", err)
	if err != nil {
		r.audit.LogError("repair", ownerID, customerID, err)
		return nil, err
	}
	if d.Repaired {
		r.metrics.Drift()
		r.audit.LogRepair(ownerID, d)
		publishChange(ctx, r.notifier, r.logger, ownerID, customerID)
	}
	return d, nil
}
