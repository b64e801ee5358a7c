package services

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/udhaari/khata/internal/models"
)

const (
	auditCommitted = "COMMITTED"
	auditFailed    = "FAILED"
)

// AuditEvent is one ledger mutation as written to the audit channel.
type AuditEvent struct {
	Timestamp     time.Time
	EventType     string // add, edit, delete, undo, repair
	OwnerID       string
	CustomerID    string
	TransactionID string
	Delta         models.Money
	Balance       models.Money
	Version       int64
	Status        string
	Err           error
}

// AuditLogger writes ledger mutations to a dedicated "audit" log channel,
// one structured line per committed or failed mutation.
type AuditLogger struct {
	logger zerolog.Logger
	now    func() time.Time
}

func NewAuditLogger(logger zerolog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger.With().Str("channel", "audit").Logger(),
		now:    time.Now,
	}
}

func (a *AuditLogger) LogMutation(op, ownerID string, r *models.Receipt) {
	a.log(AuditEvent{
		Timestamp:     r.At,
		EventType:     op,
		OwnerID:       ownerID,
		CustomerID:    r.CustomerID,
		TransactionID: r.TransactionID,
		Delta:         r.Delta,
		Balance:       r.Balance,
		Version:       r.Version,
		Status:        auditCommitted,
	})
}

func (a *AuditLogger) LogRepair(ownerID string, d *Drift) {
	a.log(AuditEvent{
		Timestamp:  a.now(),
		EventType:  "repair",
		OwnerID:    ownerID,
		CustomerID: d.CustomerID,
		Delta:      d.Difference,
		Balance:    d.Ledger,
		Status:     auditCommitted,
	})
}

func (a *AuditLogger) LogError(op, ownerID, customerID string, err error) {
	a.log(AuditEvent{
		Timestamp:  a.now(),
		EventType:  op,
		OwnerID:    ownerID,
		CustomerID: customerID,
		Status:     auditFailed,
		Err:        err,
	})
}

func (a *AuditLogger) log(e AuditEvent) {
	evt := a.logger.Info()
	if e.Err != nil {
		evt = a.logger.Warn().Err(e.Err)
	}
	evt = evt.
		Time("event_time", e.Timestamp).
		Str("event_type", e.EventType).
		Str("owner_id", e.OwnerID).
		Str("customer_id", e.CustomerID).
		Str("status", e.Status)
	if e.Status == auditCommitted {
		evt = evt.
			Str("delta", e.Delta.String()).
			Str("balance", e.Balance.String())
	}
	if e.TransactionID != "" {
		evt = evt.Str("transaction_id", e.TransactionID).Int64("version", e.Version)
	}
	evt.Msg("ledger mutation")
}
