package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/udhaari/khata/internal/models"
	"github.com/udhaari/khata/internal/services"
)

// transactionRequest is the wire form of a new entry. Date is "2006-01-02" or RFC3339.
type transactionRequest struct {
	Type   models.TxType `json:"type" validate:"required,oneof=credit debit"`
	Amount models.Money  `json:"amount" validate:"required"`
	Note   string        `json:"note" validate:"max=500"`
	Date   string        `json:"date"`
}

type transactionPatchRequest struct {
	Amount *models.Money `json:"amount"`
	Note   *string       `json:"note" validate:"omitempty,max=500"`
	Date   *string       `json:"date"`
}

type TransactionHandler struct {
	ledger     *services.LedgerService
	sessions   *services.SessionRegistry
	reconciler *services.Reconciler
	loc        *time.Location
	validator  *services.ValidationHelper
	logger     zerolog.Logger
}

func NewTransactionHandler(ledger *services.LedgerService, sessions *services.SessionRegistry, reconciler *services.Reconciler, loc *time.Location, logger zerolog.Logger) *TransactionHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &TransactionHandler{
		ledger:     ledger,
		sessions:   sessions,
		reconciler: reconciler,
		loc:        loc,
		validator:  services.NewValidationHelper(),
		logger:     logger.With().Str("handler", "transactions").Logger(),
	}
}

func (h *TransactionHandler) parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := services.ParseDate(s, h.loc)
	if err != nil {
		return nil, models.Invalid("date", "must be YYYY-MM-DD or RFC 3339")
	}
	return &d, nil
}

// List returns the customer's ledger newest first with running balances.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	lines, err := h.ledger.ListTransactions(r.Context(), ownerID, chi.URLParam(r, "customerId"), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": lines})
}

func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	var req transactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		writeError(w, err)
		return
	}

	session := h.sessions.Session(ownerID, chi.URLParam(r, "customerId"))
	receipt, err := session.AddTransaction(r.Context(), services.AddTransactionRequest{
		Type:   req.Type,
		Amount: req.Amount,
		Note:   req.Note,
		Date:   date,
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.sessions.Drop(ownerID, chi.URLParam(r, "customerId"))
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"receipt": receipt,
		"undo":    session.UndoState(),
	})
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	tx, err := h.ledger.GetTransaction(r.Context(), ownerID, chi.URLParam(r, "customerId"), chi.URLParam(r, "txId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *TransactionHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	var req transactionPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	patch := models.TransactionPatch{Amount: req.Amount, Note: req.Note}
	if req.Date != nil {
		date, err := h.parseDate(*req.Date)
		if err != nil {
			writeError(w, err)
			return
		}
		patch.Date = date
	}

	customerID := chi.URLParam(r, "customerId")
	var (
		receipt *models.Receipt
		err     error
	)
	if session, found := h.sessions.Lookup(ownerID, customerID); found {
		receipt, err = session.EditTransaction(r.Context(), chi.URLParam(r, "txId"), patch)
	} else {
		receipt, err = h.ledger.EditTransaction(r.Context(), ownerID, customerID, chi.URLParam(r, "txId"), patch)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	customerID := chi.URLParam(r, "customerId")
	var (
		receipt *models.Receipt
		err     error
	)
	if session, found := h.sessions.Lookup(ownerID, customerID); found {
		receipt, err = session.DeleteTransaction(r.Context(), chi.URLParam(r, "txId"))
	} else {
		receipt, err = h.ledger.DeleteTransaction(r.Context(), ownerID, customerID, chi.URLParam(r, "txId"))
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *TransactionHandler) UndoState(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	state := services.UndoState{}
	if session, found := h.sessions.Lookup(ownerID, chi.URLParam(r, "customerId")); found {
		state = session.UndoState()
	}
	writeJSON(w, http.StatusOK, state)
}

// Undo reverses the most recent add while its window is open.
func (h *TransactionHandler) Undo(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	session, found := h.sessions.Lookup(ownerID, chi.URLParam(r, "customerId"))
	if !found {
		writeError(w, models.ErrUndoUnavailable)
		return
	}
	receipt, err := session.Undo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// Reconcile reports drift between the cached balance and the ledger.
// POST also rewrites the cached balance from the ledger.
func (h *TransactionHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	customerID := chi.URLParam(r, "customerId")

	var (
		drift *services.Drift
		err   error
	)
	if r.Method == http.MethodPost {
		drift, err = h.reconciler.Repair(r.Context(), ownerID, customerID)
	} else {
		drift, err = h.reconciler.Verify(r.Context(), ownerID, customerID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"drift":      drift,
		"consistent": drift.Consistent(),
	})
}
