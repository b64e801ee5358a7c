package handlers

import (
	"net/http"

	"github.com/udhaari/khata/internal/services"
)

type QRHandler struct {
	service   *services.QRService
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// GenerateUPI renders a upi://pay QR the customer can scan to settle.
func (h *QRHandler) GenerateUPI(w http.ResponseWriter, r *http.Request) {
	if _, ok := ownerFrom(w, r); !ok {
		return
	}

	var req services.UPIRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	qr, err := h.service.UPIPaymentQR(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"link":    qr.Link,
		"qrImage": qr.ImagePNG,
	})
}
