package models

import (
	"strings"
	"time"
)

// Tag classifies a customer.
type Tag string

const (
	TagRegular   Tag = "regular"
	TagVIP       Tag = "vip"
	TagDefaulter Tag = "defaulter"
)

func (t Tag) Valid() bool {
	switch t {
	case TagRegular, TagVIP, TagDefaulter:
		return true
	}
	return false
}

// Customer is a ledger account owned by one shopkeeper.
// Balance > 0: the customer owes the owner. Balance < 0: the owner owes the customer.
type Customer struct {
	ID           string     `json:"id" db:"id"`
	OwnerID      string     `json:"-" db:"owner_id"`
	Name         string     `json:"name" db:"name"`
	Phone        string     `json:"phone,omitempty" db:"phone"`
	Balance      Money      `json:"balance" db:"balance"`
	Tag          Tag        `json:"tag" db:"tag"`
	DueDate      *time.Time `json:"dueDate,omitempty" db:"due_date"`
	Version      int64      `json:"version" db:"version"` // bumped by every balance write
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	LastActivity time.Time  `json:"lastActivity" db:"last_activity"`
}

// IsOverdue reports whether a due date is set, has passed, and the customer still owes the owner.
// today is truncated to a calendar day in its own location.
func (c Customer) IsOverdue(today time.Time) bool {
	if c.DueDate == nil || !c.Balance.IsPositive() {
		return false
	}
	return DateOf(*c.DueDate).Before(DateOf(today))
}

// Standing is the human framing of the balance sign.
func (c Customer) Standing() string {
	switch {
	case c.Balance.IsPositive():
		return "to_receive"
	case c.Balance.IsNegative():
		return "to_give"
	default:
		return "settled"
	}
}

// PhoneDigits strips everything but digits from the phone number.
func (c Customer) PhoneDigits() string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, c.Phone)
}

// CustomerProfile carries the user-editable customer fields.
type CustomerProfile struct {
	Name    string
	Phone   string
	Tag     Tag
	DueDate *time.Time
}

// CivilDate is the calendar day of t as seen in loc, expressed as midnight UTC.
// Due dates and "today" are compared in this form.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates t to midnight in t's location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
