package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/udhaari/khata/internal/config"
	"github.com/udhaari/khata/internal/services"
)

type CustomerHandler struct {
	customers *services.CustomerService
	reports   *services.ReportService
	cfg       config.LedgerConfig
	validator *services.ValidationHelper
	logger    zerolog.Logger
}

func NewCustomerHandler(customers *services.CustomerService, reports *services.ReportService, cfg config.LedgerConfig, logger zerolog.Logger) *CustomerHandler {
	return &CustomerHandler{
		customers: customers,
		reports:   reports,
		cfg:       cfg,
		validator: services.NewValidationHelper(),
		logger:    logger.With().Str("handler", "customers").Logger(),
	}
}

// List returns the owner's customers.
// Query: filter=all|receive|give|overdue, q=<name or phone>.
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	filter := services.CustomerFilter{
		View:   services.CustomerView(r.URL.Query().Get("filter")),
		Search: r.URL.Query().Get("q"),
	}
	customers, err := h.customers.ListCustomers(r.Context(), ownerID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"customers": customers,
		"totals":    services.ComputeTotals(customers),
	})
}

func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	var req services.CreateCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	c, err := h.customers.AddCustomer(r.Context(), ownerID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	c, err := h.customers.GetCustomer(r.Context(), ownerID, chi.URLParam(r, "customerId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"customer": c,
		"overdue":  c.IsOverdue(h.customers.Today()),
		"standing": c.Standing(),
	})
}

func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	var req services.UpdateCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	profile, err := req.Profile(h.cfg.TZ())
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.customers.EditCustomer(r.Context(), ownerID, chi.URLParam(r, "customerId"), profile)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	if err := h.customers.DeleteCustomer(r.Context(), ownerID, chi.URLParam(r, "customerId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reminder returns the balance summary with WhatsApp and SMS deep links.
func (h *CustomerHandler) Reminder(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	c, err := h.customers.GetCustomer(r.Context(), ownerID, chi.URLParam(r, "customerId"))
	if err != nil {
		writeError(w, err)
		return
	}
	reminder, err := services.BuildReminder(*c, h.cfg.BusinessName, h.cfg.Currency)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reminder)
}

// Statement returns the account snapshot as JSON, or as CSV with format=csv.
func (h *CustomerHandler) Statement(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	st, err := h.reports.Statement(r.Context(), ownerID, chi.URLParam(r, "customerId"))
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") != "csv" {
		writeJSON(w, http.StatusOK, st)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="statement-`+st.Customer.ID+`.csv"`)
	if err := services.WriteStatementCSV(w, st, h.cfg.TZ()); err != nil {
		h.logger.Error().Err(err).Str("customer_id", st.Customer.ID).Msg("write statement csv")
	}
}
