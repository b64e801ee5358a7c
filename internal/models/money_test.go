package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	t.Run("whole and fractional amounts", func(t *testing.T) {
		m, err := ParseMoney("500")
		require.NoError(t, err)
		assert.Equal(t, Money(50000), m)

		m, err = ParseMoney("12.5")
		require.NoError(t, err)
		assert.Equal(t, Money(1250), m)

		m, err = ParseMoney("-3.75")
		require.NoError(t, err)
		assert.Equal(t, Money(-375), m)
	})

	t.Run("sub-paisa precision rejected", func(t *testing.T) {
		_, err := ParseMoney("0.001")
		assert.Error(t, err)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := ParseMoney("abc")
		assert.Error(t, err)
	})

	t.Run("repeated additions do not drift", func(t *testing.T) {
		var total Money
		tenth := MustParseMoney("0.10")
		for i := 0; i < 1000; i++ {
			total = total.Add(tenth)
		}
		assert.Equal(t, "100.00", total.String())
	})
}

func TestMoney_Format(t *testing.T) {
	assert.Equal(t, "-300.00", Money(-30000).String())
	assert.Equal(t, "0.05", Money(5).String())
	assert.Equal(t, "1500", Rupees(1500).Display())
	assert.Equal(t, "12.50", Money(1250).Display())
}

func TestMoney_JSON(t *testing.T) {
	t.Run("encodes as string", func(t *testing.T) {
		b, err := json.Marshal(struct {
			Amount Money `json:"amount"`
		}{Amount: 123456})
		require.NoError(t, err)
		assert.JSONEq(t, `{"amount":"1234.56"}`, string(b))
	})

	t.Run("decodes string and number literals", func(t *testing.T) {
		var v struct {
			A Money `json:"a"`
			B Money `json:"b"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"a":"0.30","b":0.1}`), &v))
		assert.Equal(t, Money(30), v.A)
		assert.Equal(t, Money(10), v.B)
	})

	t.Run("rejects sub-paisa numbers", func(t *testing.T) {
		var v struct {
			A Money `json:"a"`
		}
		assert.Error(t, json.Unmarshal([]byte(`{"a":1.005}`), &v))
	})
}

func TestMoney_Scan(t *testing.T) {
	var m Money
	require.NoError(t, m.Scan(int64(700)))
	assert.Equal(t, Money(700), m)
	require.NoError(t, m.Scan([]byte("-42")))
	assert.Equal(t, Money(-42), m)
	assert.Error(t, m.Scan(1.5))
}

func TestEffect(t *testing.T) {
	for _, amt := range []Money{1, 100, Rupees(500), Rupees(1_000_000)} {
		credit, err := Effect(TxCredit, amt)
		require.NoError(t, err)
		assert.Equal(t, amt, credit)

		debit, err := Effect(TxDebit, amt)
		require.NoError(t, err)
		assert.Equal(t, -amt, debit)
	}

	_, err := Effect(TxCredit, -1)
	assert.Error(t, err)

	_, err = Effect(TxType("refund"), 10)
	assert.Error(t, err)
}

func TestCustomer_IsOverdue(t *testing.T) {
	today := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	sameDay := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	assert.True(t, Customer{Balance: 100, DueDate: &yesterday}.IsOverdue(today))
	assert.False(t, Customer{Balance: 100, DueDate: &sameDay}.IsOverdue(today))
	assert.False(t, Customer{Balance: -100, DueDate: &yesterday}.IsOverdue(today))
	assert.False(t, Customer{Balance: 0, DueDate: &yesterday}.IsOverdue(today))
	assert.False(t, Customer{Balance: 100}.IsOverdue(today))
}

func TestTransaction_LogicalDate(t *testing.T) {
	created := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	date := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, created, Transaction{CreatedAt: created}.LogicalDate())
	assert.Equal(t, date, Transaction{CreatedAt: created, Date: &date}.LogicalDate())
}
