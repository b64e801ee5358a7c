package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/udhaari/khata/internal/config"
	"github.com/udhaari/khata/internal/metrics"
	"github.com/udhaari/khata/internal/models"
	"github.com/udhaari/khata/internal/repository"
)

const owner = "owner-1"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	ctx        context.Context
	repo       *repository.MemoryRepository
	notifier   *LocalNotifier
	metrics    *metrics.Metrics
	reconciler *Reconciler
	ledger     *LedgerService
	sessions   *SessionRegistry
	customers  *CustomerService
	reports    *ReportService
	clock      *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := repository.NewMemoryRepository()
	notifier := NewLocalNotifier()
	log := zerolog.Nop()
	m := metrics.New()
	clock := &fakeClock{t: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	cfg := *config.DefaultLedgerConfig()

	reconciler := NewReconciler(repo, notifier, log, m)
	ledger := NewLedgerService(repo, reconciler, notifier, log, m)
	ledger.SetClock(clock.Now)
	sessions := NewSessionRegistry(ledger, cfg.UndoWindow)
	customers := NewCustomerService(repo, notifier, sessions, cfg, log, m)
	customers.SetClock(clock.Now)
	reports := NewReportService(repo, cfg)
	reports.SetClock(clock.Now)

	t.Cleanup(func() {
		for _, s := range sessions.sessions {
			s.Close()
		}
	})

	return &fixture{
		ctx:        context.Background(),
		repo:       repo,
		notifier:   notifier,
		metrics:    m,
		reconciler: reconciler,
		ledger:     ledger,
		sessions:   sessions,
		customers:  customers,
		reports:    reports,
		clock:      clock,
	}
}

func (f *fixture) customer(t *testing.T, name string) *models.Customer {
	t.Helper()
	c, err := f.customers.AddCustomer(f.ctx, owner, CreateCustomerRequest{Name: name, Phone: "+91 98765 43210"})
	require.NoError(t, err)
	return c
}

// add records a transaction one second after the previous one so ordering is deterministic.
func (f *fixture) add(t *testing.T, customerID string, typ models.TxType, amount models.Money, note string) *models.Receipt {
	t.Helper()
	f.clock.Advance(time.Second)
	r, err := f.ledger.AddTransaction(f.ctx, owner, customerID, AddTransactionRequest{Type: typ, Amount: amount, Note: note})
	require.NoError(t, err)
	return r
}

func (f *fixture) balance(t *testing.T, customerID string) models.Money {
	t.Helper()
	c, err := f.repo.GetCustomer(f.ctx, owner, customerID)
	require.NoError(t, err)
	return c.Balance
}

func (f *fixture) txCount(t *testing.T, customerID string) int {
	t.Helper()
	txs, err := f.repo.ListTransactions(f.ctx, owner, customerID)
	require.NoError(t, err)
	return len(txs)
}
