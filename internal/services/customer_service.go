package services

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/udhaari/khata/internal/config"
	"github.com/udhaari/khata/internal/metrics"
	"github.com/udhaari/khata/internal/models"
	"github.com/udhaari/khata/internal/repository"
)

const maxNameLength = 100

// CustomerView selects a slice of the customer list.
type CustomerView string

const (
	ViewAll     CustomerView = "all"
	ViewReceive CustomerView = "receive"
	ViewGive    CustomerView = "give"
	ViewOverdue CustomerView = "overdue"
)

func (v CustomerView) Valid() bool {
	switch v {
	case ViewAll, ViewReceive, ViewGive, ViewOverdue:
		return true
	}
	return false
}

type CustomerFilter struct {
	View   CustomerView
	Search string
}

type CreateCustomerRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Phone string `json:"phone,omitempty" validate:"omitempty,phone"`
}

type UpdateCustomerRequest struct {
	Name    string     `json:"name" validate:"required,max=100"`
	Phone   string     `json:"phone,omitempty" validate:"omitempty,phone"`
	Tag     models.Tag `json:"tag,omitempty" validate:"omitempty,oneof=regular vip defaulter"`
	DueDate string     `json:"dueDate,omitempty"` // YYYY-MM-DD or RFC 3339; empty clears
}

// Profile converts the request; date-only due dates are read in loc.
func (r UpdateCustomerRequest) Profile(loc *time.Location) (models.CustomerProfile, error) {
	p := models.CustomerProfile{Name: r.Name, Phone: r.Phone, Tag: r.Tag}
	if r.DueDate != "" {
		d, err := ParseDate(r.DueDate, loc)
		if err != nil {
			return p, models.Invalid("dueDate", "must be YYYY-MM-DD")
		}
		p.DueDate = &d
	}
	return p, nil
}

// ParseDate accepts a calendar date (midnight in loc) or a full RFC 3339 timestamp.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// CustomerService manages customer records. Balances are never written here.
type CustomerService struct {
	repo     repository.Repository
	notifier Notifier
	sessions *SessionRegistry
	cfg      config.LedgerConfig
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string
}

func NewCustomerService(repo repository.Repository, notifier Notifier, sessions *SessionRegistry, cfg config.LedgerConfig, logger zerolog.Logger, m *metrics.Metrics) *CustomerService {
	return &CustomerService{
		repo:     repo,
		notifier: notifier,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger.With().Str("component", "customers").Logger(),
		metrics:  m,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *CustomerService) SetClock(now func() time.Time) { s.now = now }

// Today is the current calendar day in the configured timezone.
func (s *CustomerService) Today() time.Time {
	return models.CivilDate(s.now(), s.cfg.TZ())
}

func (s *CustomerService) AddCustomer(ctx context.Context, ownerID string, req CreateCustomerRequest) (*models.Customer, error) {
	name, phone, err := cleanNamePhone(req.Name, req.Phone)
	if err != nil {
		s.metrics.Mutation("add_customer", err)
		return nil, err
	}
	now := s.now()
	c := &models.Customer{
		ID:           s.newID(),
		OwnerID:      ownerID,
		Name:         name,
		Phone:        phone,
		Tag:          models.TagRegular,
		CreatedAt:    now,
		LastActivity: now,
	}
	err = s.repo.CreateCustomer(ctx, c)
	s.metrics.Mutation("add_customer", err)
	if err != nil {
		s.logger.Error().Err(err).Str("owner_id", ownerID).Msg("create customer")
		return nil, err
	}
	s.logger.Info().Str("owner_id", ownerID).Str("customer_id", c.ID).Msg("customer created")
	publishChange(ctx, s.notifier, s.logger, ownerID, "")
	return c, nil
}

// EditCustomer replaces the profile fields. A nil DueDate clears it.
func (s *CustomerService) EditCustomer(ctx context.Context, ownerID, customerID string, p models.CustomerProfile) (*models.Customer, error) {
	c, err := s.editCustomer(ctx, ownerID, customerID, p)
	s.metrics.Mutation("edit_customer", err)
	if err != nil {
		return nil, err
	}
	publishChange(ctx, s.notifier, s.logger, ownerID, customerID)
	return c, nil
}

func (s *CustomerService) editCustomer(ctx context.Context, ownerID, customerID string, p models.CustomerProfile) (*models.Customer, error) {
	name, phone, err := cleanNamePhone(p.Name, p.Phone)
	if err != nil {
		return nil, err
	}
	tag := p.Tag
	if tag == "" {
		tag = models.TagRegular
	}
	if !tag.Valid() {
		return nil, models.Invalid("tag", "must be regular, vip or defaulter")
	}

	c, err := s.repo.GetCustomer(ctx, ownerID, customerID)
	if err != nil {
		return nil, err
	}
	c.Name, c.Phone, c.Tag = name, phone, tag
	c.DueDate = nil
	if p.DueDate != nil {
		d := models.CivilDate(*p.DueDate, s.cfg.TZ())
		c.DueDate = &d
	}
	if err := s.repo.UpdateCustomerProfile(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCustomer removes the customer with all transactions and closes its session.
func (s *CustomerService) DeleteCustomer(ctx context.Context, ownerID, customerID string) error {
	err := s.repo.DeleteCustomer(ctx, ownerID, customerID)
	s.metrics.Mutation("delete_customer", err)
	if err != nil {
		return err
	}
	if s.sessions != nil {
		s.sessions.Drop(ownerID, customerID)
	}
	s.logger.Info().Str("owner_id", ownerID).Str("customer_id", customerID).Msg("customer deleted")
	publishChange(ctx, s.notifier, s.logger, ownerID, customerID)
	return nil
}

func (s *CustomerService) GetCustomer(ctx context.Context, ownerID, customerID string) (*models.Customer, error) {
	return s.repo.GetCustomer(ctx, ownerID, customerID)
}

func (s *CustomerService) ListCustomers(ctx context.Context, ownerID string, f CustomerFilter) ([]models.Customer, error) {
	if f.View == "" {
		f.View = ViewAll
	}
	if !f.View.Valid() {
		return nil, models.Invalid("filter", "must be all, receive, give or overdue")
	}
	customers, err := s.repo.ListCustomers(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return FilterCustomers(customers, f, s.Today()), nil
}

// FilterCustomers applies the view and search, most recently active first.
func FilterCustomers(customers []models.Customer, f CustomerFilter, today time.Time) []models.Customer {
	q := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]models.Customer, 0, len(customers))
	for _, c := range customers {
		switch f.View {
		case ViewReceive:
			if !c.Balance.IsPositive() {
				continue
			}
		case ViewGive:
			if !c.Balance.IsNegative() {
				continue
			}
		case ViewOverdue:
			if !c.IsOverdue(today) {
				continue
			}
		}
		if q != "" && !strings.Contains(strings.ToLower(c.Name), q) && !strings.Contains(c.Phone, q) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out
}

func cleanNamePhone(name, phone string) (string, string, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" {
		return "", "", models.Invalid("name", "is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", "", models.Invalid("name", "is too long")
	}
	if phone != "" && !ValidPhone(phone) {
		return "", "", models.Invalid("phone", "must contain 7 to 15 digits")
	}
	return name, phone, nil
}
