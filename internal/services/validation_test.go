package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udhaari/khata/internal/models"
)

func TestValidationHelper_CustomTags(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("phone", func(t *testing.T) {
		assert.NoError(t, vh.ValidateStruct(&CreateCustomerRequest{Name: "Asha", Phone: "+91 (98765) 43210"}))
		assert.NoError(t, vh.ValidateStruct(&CreateCustomerRequest{Name: "Asha"}))

		err := vh.ValidateStruct(&CreateCustomerRequest{Name: "Asha", Phone: "12-34"})
		var verrs validator.ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, "phone", verrs[0].Tag())
	})

	t.Run("upi", func(t *testing.T) {
		assert.NoError(t, vh.ValidateStruct(&UPIRequest{UPIID: "asha.store@okaxis", PayeeName: "Asha Store"}))
		assert.Error(t, vh.ValidateStruct(&UPIRequest{UPIID: "asha.store", PayeeName: "Asha Store"}))
		assert.Error(t, vh.ValidateStruct(&UPIRequest{UPIID: "a@1bank", PayeeName: "Asha Store"}))
	})

	t.Run("transaction type", func(t *testing.T) {
		assert.NoError(t, vh.ValidateStruct(&AddTransactionRequest{Type: models.TxDebit, Amount: models.Rupees(1)}))
		assert.Error(t, vh.ValidateStruct(&AddTransactionRequest{Type: "refund", Amount: models.Rupees(1)}))
		assert.Error(t, vh.ValidateStruct(&AddTransactionRequest{Type: models.TxDebit}))
	})
}

func TestValidPhone(t *testing.T) {
	for _, p := range []string{"9876543210", "+91-98765-43210", "(022) 2345 6789"} {
		assert.True(t, ValidPhone(p), p)
	}
	for _, p := range []string{"", "12345", "98765x43210", "+1 234 567 890 123 456"} {
		assert.False(t, ValidPhone(p), p)
	}
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("validator errors", func(t *testing.T) {
		vh := NewValidationHelper()
		err := vh.ValidateStruct(&CreateCustomerRequest{})

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "Validation failed", resp.Error)
		assert.Contains(t, resp.Details, "Name")
	})

	t.Run("domain validation error", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, models.Invalid("amount", "must be greater than zero"))

		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "must be greater than zero", resp.Details["amount"])
	})

	t.Run("no details", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Customer not found", http.StatusNotFound, nil)

		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "Customer not found", resp.Error)
		assert.Nil(t, resp.Details)
	})
}
