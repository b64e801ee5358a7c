package models

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// MinorUnitExp is the decimal exponent of one minor unit (1 paisa = 0.01).
const MinorUnitExp = -2

// Money is an amount in minor units (paise). Arithmetic is exact integer math.
type Money int64

// ParseMoney parses a decimal string such as "500", "12.5" or "-3.75".
// More than two fractional digits is rejected rather than rounded.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return MoneyFromDecimal(d)
}

// MustParseMoney is ParseMoney for constants and tests.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyFromDecimal converts d to minor units, failing if d carries sub-paisa precision.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	scaled := d.Shift(-MinorUnitExp)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d.String(), -MinorUnitExp)
	}
	if scaled.Abs().GreaterThan(decimal.NewFromInt(maxMinorUnits)) {
		return 0, fmt.Errorf("amount %s out of range", d.String())
	}
	return Money(scaled.IntPart()), nil
}

// Rupees builds Money from whole units.
func Rupees(n int64) Money {
	return Money(n * 100)
}

const maxMinorUnits = 1 << 53

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), MinorUnitExp)
}

func (m Money) Add(o Money) Money { return m + o }
func (m Money) Sub(o Money) Money { return m - o }
func (m Money) Neg() Money        { return -m }

func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

func (m Money) IsZero() bool     { return m == 0 }
func (m Money) IsPositive() bool { return m > 0 }
func (m Money) IsNegative() bool { return m < 0 }

// String renders the amount with exactly two decimals, e.g. "-300.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(-MinorUnitExp)
}

// Display renders the amount for messages: no decimals when whole ("1500"), two otherwise.
func (m Money) Display() string {
	if m%100 == 0 {
		return strconv.FormatInt(int64(m)/100, 10)
	}
	return m.String()
}

// MarshalJSON encodes Money as a string so it never passes through a float.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

// UnmarshalJSON accepts "12.50" or a bare numeric literal 12.50.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(raw)
		if err != nil {
			return err
		}
		raw = s
	}
	v, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Value implements driver.Valuer; stored as BIGINT minor units.
func (m Money) Value() (driver.Value, error) {
	return int64(m), nil
}

// Scan implements sql.Scanner for Money
func (m *Money) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*m = 0
	case int64:
		*m = Money(v)
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return err
		}
		*m = Money(n)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*m = Money(n)
	default:
		return fmt.Errorf("cannot scan %T into Money", value)
	}
	return nil
}
