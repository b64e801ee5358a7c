package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/udhaari/khata/internal/config"
	"github.com/udhaari/khata/internal/models"
	"github.com/udhaari/khata/internal/repository"
)

type Granularity string

const (
	Weekly  Granularity = "week"
	Monthly Granularity = "month"
)

func (g Granularity) Valid() bool { return g == Weekly || g == Monthly }

// PeriodBucket aggregates the transactions whose logical date falls in one period.
type PeriodBucket struct {
	Period  time.Time    `json:"period"`
	Label   string       `json:"label"`
	Inflow  models.Money `json:"inflow"`  // credits
	Outflow models.Money `json:"outflow"` // debits
	Net     models.Money `json:"net"`
}

// PeriodStart truncates t in loc to the start of its week (Sunday) or month.
func PeriodStart(t time.Time, g Granularity, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	if g == Monthly {
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	}
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

func periodLabel(start time.Time, g Granularity) string {
	if g == Monthly {
		return start.Format("2006-01")
	}
	return start.Format("2006-01-02")
}

// BucketByPeriod groups txs by period of their logical date and returns the n
// most recent non-empty periods in ascending order.
func BucketByPeriod(txs []models.Transaction, g Granularity, n int, loc *time.Location) []PeriodBucket {
	if loc == nil {
		loc = time.UTC
	}
	byStart := make(map[int64]*PeriodBucket)
	for _, t := range txs {
		start := PeriodStart(t.LogicalDate(), g, loc)
		b, ok := byStart[start.Unix()]
		if !ok {
			b = &PeriodBucket{Period: start, Label: periodLabel(start, g)}
			byStart[start.Unix()] = b
		}
		switch t.Type {
		case models.TxCredit:
			b.Inflow = b.Inflow.Add(t.Amount)
		case models.TxDebit:
			b.Outflow = b.Outflow.Add(t.Amount)
		}
	}

	out := make([]PeriodBucket, 0, len(byStart))
	for _, b := range byStart {
		b.Net = b.Inflow.Sub(b.Outflow)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// TopDebtors returns up to n customers who owe the owner, largest balance first.
func TopDebtors(customers []models.Customer, n int) []models.Customer {
	out := []models.Customer{}
	for _, c := range customers {
		if c.Balance.IsPositive() {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Balance > out[j].Balance })
	if n < 0 {
		n = 0
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

type Totals struct {
	ToReceive models.Money `json:"toReceive"`
	ToGive    models.Money `json:"toGive"`
}

func ComputeTotals(customers []models.Customer) Totals {
	var t Totals
	for _, c := range customers {
		switch {
		case c.Balance.IsPositive():
			t.ToReceive = t.ToReceive.Add(c.Balance)
		case c.Balance.IsNegative():
			t.ToGive = t.ToGive.Add(c.Balance.Abs())
		}
	}
	return t
}

type InterestRequest struct {
	Principal   models.Money    `json:"principal" validate:"required"`
	MonthlyRate decimal.Decimal `json:"monthlyRate"` // percent per month
	Months      int             `json:"months" validate:"required,min=1,max=600"`
}

type InterestQuote struct {
	Principal models.Money `json:"principal"`
	Interest  models.Money `json:"interest"`
	Total     models.Money `json:"total"`
}

// SimpleInterest computes principal * rate/100 * months, rounded to the paisa.
func SimpleInterest(principal models.Money, monthlyRate decimal.Decimal, months int) (*InterestQuote, error) {
	if !principal.IsPositive() {
		return nil, models.Invalid("principal", "must be greater than zero")
	}
	if monthlyRate.IsNegative() {
		return nil, models.Invalid("monthlyRate", "must not be negative")
	}
	if months <= 0 {
		return nil, models.Invalid("months", "must be at least 1")
	}
	raw := principal.Decimal().
		Mul(monthlyRate).
		Div(decimal.NewFromInt(100)).
		Mul(decimal.NewFromInt(int64(months))).
		Round(2)
	interest, err := models.MoneyFromDecimal(raw)
	if err != nil {
		return nil, models.Invalid("principal", err.Error())
	}
	return &InterestQuote{Principal: principal, Interest: interest, Total: principal.Add(interest)}, nil
}

// Summary is the dashboard view of one owner's book.
type Summary struct {
	Totals
	Net           models.Money      `json:"net"`
	CustomerCount int               `json:"customerCount"`
	OverdueCount  int               `json:"overdueCount"`
	TopDebtors    []models.Customer `json:"topDebtors"`
}

// Statement is a read-only snapshot of one customer's account for document renderers.
type Statement struct {
	BusinessName string              `json:"businessName"`
	Customer     models.Customer     `json:"customer"`
	Lines        []models.LedgerLine `json:"transactions"`
	TotalCredit  models.Money        `json:"totalCredit"`
	TotalDebit   models.Money        `json:"totalDebit"`
	GeneratedAt  time.Time           `json:"generatedAt"`
}

// ReportService projects the ledger into read-only views. It never writes.
type ReportService struct {
	repo repository.Repository
	cfg  config.LedgerConfig
	now  func() time.Time
}

func NewReportService(repo repository.Repository, cfg config.LedgerConfig) *ReportService {
	return &ReportService{repo: repo, cfg: cfg, now: time.Now}
}

func (s *ReportService) SetClock(now func() time.Time) { s.now = now }

func (s *ReportService) Summary(ctx context.Context, ownerID string) (*Summary, error) {
	customers, err := s.repo.ListCustomers(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	today := models.CivilDate(s.now(), s.cfg.TZ())
	overdue := 0
	for _, c := range customers {
		if c.IsOverdue(today) {
			overdue++
		}
	}
	totals := ComputeTotals(customers)
	return &Summary{
		Totals:        totals,
		Net:           totals.ToReceive.Sub(totals.ToGive),
		CustomerCount: len(customers),
		OverdueCount:  overdue,
		TopDebtors:    TopDebtors(customers, s.cfg.TopDebtors),
	}, nil
}

func (s *ReportService) Trend(ctx context.Context, ownerID string, g Granularity) ([]PeriodBucket, error) {
	if !g.Valid() {
		return nil, models.Invalid("granularity", "must be week or month")
	}
	txs, err := s.repo.ListOwnerTransactions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	n := s.cfg.MonthlyPeriods
	if g == Weekly {
		n = s.cfg.WeeklyPeriods
	}
	return BucketByPeriod(txs, g, n, s.cfg.TZ()), nil
}

func (s *ReportService) TopDebtors(ctx context.Context, ownerID string, n int) ([]models.Customer, error) {
	if n <= 0 {
		n = s.cfg.TopDebtors
	}
	customers, err := s.repo.ListCustomers(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return TopDebtors(customers, n), nil
}

func (s *ReportService) Statement(ctx context.Context, ownerID, customerID string) (*Statement, error) {
	c, err := s.repo.GetCustomer(ctx, ownerID, customerID)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactions(ctx, ownerID, customerID)
	if err != nil {
		return nil, err
	}
	st := &Statement{
		BusinessName: s.cfg.BusinessName,
		Customer:     *c,
		Lines:        RunningLedger(c.Balance, txs, ""),
		GeneratedAt:  s.now(),
	}
	for _, t := range txs {
		switch t.Type {
		case models.TxCredit:
			st.TotalCredit = st.TotalCredit.Add(t.Amount)
		case models.TxDebit:
			st.TotalDebit = st.TotalDebit.Add(t.Amount)
		}
	}
	return st, nil
}

// WriteStatementCSV writes the statement lines oldest first, followed by a balance row.
func WriteStatementCSV(w io.Writer, st *Statement, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "type", "amount", "note", "balance"}); err != nil {
		return err
	}
	for i := len(st.Lines) - 1; i >= 0; i-- {
		l := st.Lines[i]
		row := []string{
			l.LogicalDate().In(loc).Format("2006-01-02"),
			string(l.Type),
			l.Amount.String(),
			l.Note,
			l.RunningBalance.String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{"", "", "", fmt.Sprintf("balance (%s)", st.Customer.Standing()), st.Customer.Balance.String()}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
