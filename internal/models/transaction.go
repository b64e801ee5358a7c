package models

import (
	"fmt"
	"time"
)

// TxType is the user-facing direction label of a ledger entry.
type TxType string

const (
	// TxCredit: the owner gave goods or money ("you gave"); the customer owes more.
	TxCredit TxType = "credit"
	// TxDebit: the owner received a payment ("you got").
	TxDebit TxType = "debit"
)

func (t TxType) Valid() bool {
	return t == TxCredit || t == TxDebit
}

// Effect is the single sign policy of the ledger. Every balance change in the
// system derives its sign from here: credit => +amount, debit => -amount.
func Effect(t TxType, amount Money) (Money, error) {
	if amount < 0 {
		return 0, fmt.Errorf("amount must not be negative: %s", amount)
	}
	switch t {
	case TxCredit:
		return amount, nil
	case TxDebit:
		return -amount, nil
	default:
		return 0, fmt.Errorf("unknown transaction type %q", t)
	}
}

// Transaction is one entry of a customer's ledger.
type Transaction struct {
	ID         string     `json:"id" db:"id"`
	OwnerID    string     `json:"-" db:"owner_id"`
	CustomerID string     `json:"customerId" db:"customer_id"`
	Type       TxType     `json:"type" db:"type"`
	Amount     Money      `json:"amount" db:"amount"` // always >= 0
	Effect     Money      `json:"effect" db:"effect"` // signed delta folded into the balance
	Note       string     `json:"note,omitempty" db:"note"`
	Date       *time.Time `json:"date,omitempty" db:"tx_date"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time  `json:"updatedAt" db:"updated_at"`
}

// LogicalDate is the date used for reporting: Date, or CreatedAt when unset.
func (t Transaction) LogicalDate() time.Time {
	if t.Date != nil && !t.Date.IsZero() {
		return *t.Date
	}
	return t.CreatedAt
}

// LedgerLine is a transaction together with the customer balance right after it.
type LedgerLine struct {
	Transaction
	RunningBalance Money `json:"runningBalance"`
}

// Receipt describes a committed ledger mutation; it carries what the undo window needs.
type Receipt struct {
	TransactionID string    `json:"transactionId"`
	CustomerID    string    `json:"customerId"`
	Effect        Money     `json:"effect"`
	Delta         Money     `json:"delta"`
	Balance       Money     `json:"balance"`
	Version       int64     `json:"version"`
	At            time.Time `json:"at"`
}

// TransactionPatch holds the mutable fields of a transaction. Type is immutable.
type TransactionPatch struct {
	Amount *Money
	Note   *string
	Date   *time.Time
}
