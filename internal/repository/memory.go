package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/udhaari/khata/internal/models"
)

type memState struct {
	customers map[string]models.Customer              // key: owner/customer
	txs       map[string]map[string]models.Transaction // key: owner/customer -> tx id
}

func (s *memState) clone() *memState {
	out := &memState{
		customers: make(map[string]models.Customer, len(s.customers)),
		txs:       make(map[string]map[string]models.Transaction, len(s.txs)),
	}
	for k, c := range s.customers {
		out.customers[k] = c
	}
	for k, set := range s.txs {
		cp := make(map[string]models.Transaction, len(set))
		for id, t := range set {
			cp[id] = t
		}
		out.txs[k] = cp
	}
	return out
}

// MemoryRepository keeps everything in process. A batch works on a copy of the
// state that replaces the live state only when fn returns nil.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memState

	// FailCommit, when set, is consulted before a batch commits; a non-nil
	// result aborts the batch as a storage failure would.
	FailCommit func() error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: &memState{
		customers: make(map[string]models.Customer),
		txs:       make(map[string]map[string]models.Transaction),
	}}
}

func key(ownerID, customerID string) string {
	return ownerID + "/" + customerID
}

func (r *MemoryRepository) GetCustomer(_ context.Context, ownerID, customerID string) (*models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.state.customers[key(ownerID, customerID)]
	if !ok {
		return nil, models.NotFound("customer", customerID)
	}
	return &c, nil
}

func (r *MemoryRepository) ListCustomers(_ context.Context, ownerID string) ([]models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Customer{}
	for _, c := range r.state.customers {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) CreateCustomer(_ context.Context, c *models.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.customers[key(c.OwnerID, c.ID)] = *c
	r.state.txs[key(c.OwnerID, c.ID)] = make(map[string]models.Transaction)
	return nil
}

func (r *MemoryRepository) UpdateCustomerProfile(_ context.Context, c *models.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(c.OwnerID, c.ID)
	cur, ok := r.state.customers[k]
	if !ok {
		return models.NotFound("customer", c.ID)
	}
	cur.Name, cur.Phone, cur.Tag, cur.DueDate = c.Name, c.Phone, c.Tag, c.DueDate
	r.state.customers[k] = cur
	return nil
}

func (r *MemoryRepository) DeleteCustomer(_ context.Context, ownerID, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(ownerID, customerID)
	if _, ok := r.state.customers[k]; !ok {
		return models.NotFound("customer", customerID)
	}
	delete(r.state.customers, k)
	delete(r.state.txs, k)
	return nil
}

func (r *MemoryRepository) GetTransaction(_ context.Context, ownerID, customerID, txID string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.state.txs[key(ownerID, customerID)][txID]
	if !ok {
		return nil, models.NotFound("transaction", txID)
	}
	return &t, nil
}

func (r *MemoryRepository) ListTransactions(_ context.Context, ownerID, customerID string) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(ownerID, customerID)
	if _, ok := r.state.customers[k]; !ok {
		return nil, models.NotFound("customer", customerID)
	}
	out := make([]models.Transaction, 0, len(r.state.txs[k]))
	for _, t := range r.state.txs[k] {
		out = append(out, t)
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *MemoryRepository) ListOwnerTransactions(_ context.Context, ownerID string) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Transaction{}
	for _, set := range r.state.txs {
		for _, t := range set {
			if t.OwnerID == ownerID {
				out = append(out, t)
			}
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(txs []models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].ID > txs[j].ID
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}

func (r *MemoryRepository) RunInBatch(ctx context.Context, fn func(b Batch) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.state.clone()
	if err := fn(&memBatch{state: work}); err != nil {
		return err
	}
	if r.FailCommit != nil {
		if err := r.FailCommit(); err != nil {
			return models.WriteFailure("commit", err)
		}
	}
	r.state = work
	return nil
}

type memBatch struct {
	state *memState
}

func (b *memBatch) LockCustomer(_ context.Context, ownerID, customerID string) (*models.Customer, error) {
	c, ok := b.state.customers[key(ownerID, customerID)]
	if !ok {
		return nil, models.NotFound("customer", customerID)
	}
	return &c, nil
}

func (b *memBatch) SetBalance(_ context.Context, c *models.Customer, balance models.Money, at time.Time) error {
	k := key(c.OwnerID, c.ID)
	cur, ok := b.state.customers[k]
	if !ok {
		return models.NotFound("customer", c.ID)
	}
	if cur.Version != c.Version {
		return models.ErrConflict
	}
	cur.Balance = balance
	cur.LastActivity = at
	cur.Version++
	b.state.customers[k] = cur
	*c = cur
	return nil
}

func (b *memBatch) LockTransaction(_ context.Context, ownerID, customerID, txID string) (*models.Transaction, error) {
	t, ok := b.state.txs[key(ownerID, customerID)][txID]
	if !ok {
		return nil, models.NotFound("transaction", txID)
	}
	return &t, nil
}

func (b *memBatch) InsertTransaction(_ context.Context, t *models.Transaction) error {
	k := key(t.OwnerID, t.CustomerID)
	set, ok := b.state.txs[k]
	if !ok {
		return models.NotFound("customer", t.CustomerID)
	}
	set[t.ID] = *t
	return nil
}

func (b *memBatch) UpdateTransaction(_ context.Context, t *models.Transaction) error {
	set := b.state.txs[key(t.OwnerID, t.CustomerID)]
	if _, ok := set[t.ID]; !ok {
		return models.NotFound("transaction", t.ID)
	}
	set[t.ID] = *t
	return nil
}

func (b *memBatch) DeleteTransaction(_ context.Context, ownerID, customerID, txID string) error {
	set := b.state.txs[key(ownerID, customerID)]
	if _, ok := set[txID]; !ok {
		return models.NotFound("transaction", txID)
	}
	delete(set, txID)
	return nil
}

func (b *memBatch) SumEffects(_ context.Context, ownerID, customerID string) (models.Money, error) {
	var sum models.Money
	for _, t := range b.state.txs[key(ownerID, customerID)] {
		sum += t.Effect
	}
	return sum, nil
}
