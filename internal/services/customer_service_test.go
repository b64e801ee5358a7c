package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udhaari/khata/internal/models"
)

func TestCustomerService_AddCustomer(t *testing.T) {
	f := newFixture(t)

	c, err := f.customers.AddCustomer(f.ctx, owner, CreateCustomerRequest{Name: "  Asha  ", Phone: "98765-43210"})
	require.NoError(t, err)
	assert.Equal(t, "Asha", c.Name)
	assert.Equal(t, models.TagRegular, c.Tag)
	assert.True(t, c.Balance.IsZero())
	assert.Equal(t, f.clock.Now(), c.CreatedAt)

	_, err = f.customers.AddCustomer(f.ctx, owner, CreateCustomerRequest{Name: "   "})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.customers.AddCustomer(f.ctx, owner, CreateCustomerRequest{Name: "Ravi", Phone: "call me"})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "phone", verr.Field)
}

func TestCustomerService_EditCustomer(t *testing.T) {
	f := newFixture(t)
	c := f.customer(t, "Asha")
	f.add(t, c.ID, models.TxCredit, models.Rupees(10), "")

	due := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	got, err := f.customers.EditCustomer(f.ctx, owner, c.ID, models.CustomerProfile{Name: "Asha Devi", Tag: models.TagVIP, DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, "Asha Devi", got.Name)
	assert.Equal(t, models.TagVIP, got.Tag)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *got.DueDate)
	assert.Equal(t, models.Rupees(10), got.Balance, "profile edits never touch the balance")

	got, err = f.customers.EditCustomer(f.ctx, owner, c.ID, models.CustomerProfile{Name: "Asha Devi"})
	require.NoError(t, err)
	assert.Nil(t, got.DueDate)
	assert.Equal(t, models.TagRegular, got.Tag)

	_, err = f.customers.EditCustomer(f.ctx, owner, c.ID, models.CustomerProfile{Name: "Asha", Tag: "gold"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.customers.EditCustomer(f.ctx, owner, "nope", models.CustomerProfile{Name: "Asha"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCustomerService_DeleteCustomer(t *testing.T) {
	f := newFixture(t)
	c := f.customer(t, "Asha")
	s := f.sessions.Session(owner, c.ID)
	_, err := s.AddTransaction(f.ctx, AddTransactionRequest{Type: models.TxCredit, Amount: models.Rupees(10)})
	require.NoError(t, err)

	require.NoError(t, f.customers.DeleteCustomer(f.ctx, owner, c.ID))

	_, err = f.customers.GetCustomer(f.ctx, owner, c.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	txs, err := f.repo.ListOwnerTransactions(f.ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, txs)
	_, ok := f.sessions.Lookup(owner, c.ID)
	assert.False(t, ok)
	assert.False(t, s.UndoState().Pending)

	assert.ErrorIs(t, f.customers.DeleteCustomer(f.ctx, owner, c.ID), models.ErrNotFound)
}

func TestCustomerService_ListCustomers(t *testing.T) {
	f := newFixture(t)
	asha := f.customer(t, "Asha")
	ravi := f.customer(t, "Ravi Kumar")
	meena := f.customer(t, "Meena")
	settled := f.customer(t, "Gopal")

	f.add(t, ravi.ID, models.TxDebit, models.Rupees(200), "")
	f.add(t, meena.ID, models.TxCredit, models.Rupees(50), "")
	f.add(t, asha.ID, models.TxCredit, models.Rupees(500), "")

	past := f.clock.Now().AddDate(0, 0, -2)
	future := f.clock.Now().AddDate(0, 0, 2)
	_, err := f.customers.EditCustomer(f.ctx, owner, asha.ID, models.CustomerProfile{Name: "Asha", DueDate: &past})
	require.NoError(t, err)
	_, err = f.customers.EditCustomer(f.ctx, owner, meena.ID, models.CustomerProfile{Name: "Meena", DueDate: &future})
	require.NoError(t, err)
	_, err = f.customers.EditCustomer(f.ctx, owner, ravi.ID, models.CustomerProfile{Name: "Ravi Kumar", DueDate: &past})
	require.NoError(t, err)

	ids := func(cs []models.Customer) []string {
		out := []string{}
		for _, c := range cs {
			out = append(out, c.ID)
		}
		return out
	}

	all, err := f.customers.ListCustomers(f.ctx, owner, CustomerFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{asha.ID, meena.ID, ravi.ID, settled.ID}, ids(all), "most recent activity first")

	receive, err := f.customers.ListCustomers(f.ctx, owner, CustomerFilter{View: ViewReceive})
	require.NoError(t, err)
	assert.Equal(t, []string{asha.ID, meena.ID}, ids(receive))

	give, err := f.customers.ListCustomers(f.ctx, owner, CustomerFilter{View: ViewGive})
	require.NoError(t, err)
	assert.Equal(t, []string{ravi.ID}, ids(give))

	// Ravi's due date has passed but the owner owes Ravi, so he is not overdue.
	overdue, err := f.customers.ListCustomers(f.ctx, owner, CustomerFilter{View: ViewOverdue})
	require.NoError(t, err)
	assert.Equal(t, []string{asha.ID}, ids(overdue))

	search, err := f.customers.ListCustomers(f.ctx, owner, CustomerFilter{Search: "kumar"})
	require.NoError(t, err)
	assert.Equal(t, []string{ravi.ID}, ids(search))

	byPhone, err := f.customers.ListCustomers(f.ctx, owner, CustomerFilter{Search: "98765"})
	require.NoError(t, err)
	assert.Len(t, byPhone, 4)

	_, err = f.customers.ListCustomers(f.ctx, owner, CustomerFilter{View: "vip"})
	assert.ErrorIs(t, err, models.ErrValidation)

	other, err := f.customers.ListCustomers(f.ctx, "owner-2", CustomerFilter{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUpdateCustomerRequest_Profile(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)

	p, err := UpdateCustomerRequest{Name: "Asha", DueDate: "2026-04-01"}.Profile(ist)
	require.NoError(t, err)
	require.NotNil(t, p.DueDate)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), models.CivilDate(*p.DueDate, ist))

	p, err = UpdateCustomerRequest{Name: "Asha"}.Profile(ist)
	require.NoError(t, err)
	assert.Nil(t, p.DueDate)

	_, err = UpdateCustomerRequest{Name: "Asha", DueDate: "01/04/2026"}.Profile(ist)
	assert.ErrorIs(t, err, models.ErrValidation)
}
