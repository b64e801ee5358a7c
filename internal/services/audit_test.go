package services

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udhaari/khata/internal/models"
)

func auditLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		if line["channel"] == "audit" {
			out = append(out, line)
		}
	}
	return out
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	f.ledger.audit = NewAuditLogger(zerolog.New(&buf))
	f.reconciler.audit = NewAuditLogger(zerolog.New(&buf))
	c := f.customer(t, "Asha")

	r := f.add(t, c.ID, models.TxCredit, models.Rupees(300), "")
	_, err := f.ledger.DeleteTransaction(f.ctx, owner, c.ID, "missing")
	require.Error(t, err)
	_, err = f.reconciler.ApplyDelta(f.ctx, owner, c.ID, models.Rupees(5))
	require.NoError(t, err)
	_, err = f.reconciler.Repair(f.ctx, owner, c.ID)
	require.NoError(t, err)

	lines := auditLines(t, &buf)
	require.Len(t, lines, 3)

	assert.Equal(t, "add", lines[0]["event_type"])
	assert.Equal(t, "COMMITTED", lines[0]["status"])
	assert.Equal(t, r.TransactionID, lines[0]["transaction_id"])
	assert.Equal(t, "300.00", lines[0]["balance"])

	assert.Equal(t, "delete", lines[1]["event_type"])
	assert.Equal(t, "FAILED", lines[1]["status"])
	assert.Equal(t, "warn", lines[1]["level"])
	assert.NotEmpty(t, lines[1]["error"])

	assert.Equal(t, "repair", lines[2]["event_type"])
	assert.Equal(t, "-5.00", lines[2]["delta"])
	assert.Equal(t, "300.00", lines[2]["balance"])
}
