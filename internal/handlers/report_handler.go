package handlers

import (
	"net/http"
	"strconv"

	"github.com/udhaari/khata/internal/models"
	"github.com/udhaari/khata/internal/services"
)

type ReportHandler struct {
	reports   *services.ReportService
	validator *services.ValidationHelper
}

func NewReportHandler(reports *services.ReportService) *ReportHandler {
	return &ReportHandler{
		reports:   reports,
		validator: services.NewValidationHelper(),
	}
}

// Summary returns the dashboard totals for the owner.
func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	summary, err := h.reports.Summary(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Trend buckets inflow and outflow by period. granularity defaults to month.
func (h *ReportHandler) Trend(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	g := services.Granularity(r.URL.Query().Get("granularity"))
	if g == "" {
		g = services.Monthly
	}
	buckets, err := h.reports.Trend(r.Context(), ownerID, g)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"granularity": g,
		"periods":     buckets,
	})
}

func (h *ReportHandler) TopDebtors(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, models.Invalid("n", "must be a positive integer"))
			return
		}
		n = parsed
	}
	debtors, err := h.reports.TopDebtors(r.Context(), ownerID, n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": debtors})
}

func (h *ReportHandler) Interest(w http.ResponseWriter, r *http.Request) {
	if _, ok := ownerFrom(w, r); !ok {
		return
	}
	var req services.InterestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	quote, err := services.SimpleInterest(req.Principal, req.MonthlyRate, req.Months)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}
