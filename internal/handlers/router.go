package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers groups the API handlers mounted under /api/v1.
type Handlers struct {
	Customers    *CustomerHandler
	Transactions *TransactionHandler
	Reports      *ReportHandler
	QR           *QRHandler
	Watch        *WatchHandler
}

// Routes builds the authenticated API tree. auth must put the owner id on the
// request context.
func Routes(h Handlers, auth func(http.Handler) http.Handler, timeout time.Duration) chi.Router {
	r := chi.NewRouter()
	r.Use(auth)

	// Websockets outlive the request timeout.
	r.Get("/ws/customers", h.Watch.Customers)
	r.Get("/ws/customers/{customerId}", h.Watch.Customer)

	r.Group(func(r chi.Router) {
		if timeout > 0 {
			r.Use(middleware.Timeout(timeout))
		}

		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.Customers.List)
			r.Post("/", h.Customers.Create)

			r.Route("/{customerId}", func(r chi.Router) {
				r.Get("/", h.Customers.Get)
				r.Put("/", h.Customers.Update)
				r.Delete("/", h.Customers.Delete)
				r.Get("/reminder", h.Customers.Reminder)
				r.Get("/statement", h.Customers.Statement)
				r.Get("/reconcile", h.Transactions.Reconcile)
				r.Post("/reconcile", h.Transactions.Reconcile)

				r.Get("/transactions", h.Transactions.List)
				r.Post("/transactions", h.Transactions.Create)
				r.Get("/transactions/{txId}", h.Transactions.Get)
				r.Put("/transactions/{txId}", h.Transactions.Update)
				r.Delete("/transactions/{txId}", h.Transactions.Delete)

				r.Get("/undo", h.Transactions.UndoState)
				r.Post("/undo", h.Transactions.Undo)
			})
		})

		r.Get("/reports/summary", h.Reports.Summary)
		r.Get("/reports/trend", h.Reports.Trend)
		r.Get("/reports/top-debtors", h.Reports.TopDebtors)
		r.Post("/reports/interest", h.Reports.Interest)

		r.Post("/qr/upi", h.QR.GenerateUPI)
	})

	return r
}
