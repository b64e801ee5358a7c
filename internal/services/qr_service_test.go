package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"net/url"
	"strings"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udhaari/khata/internal/models"
)

func TestQRService_UPILink(t *testing.T) {
	s := NewQRService(nil, "INR", zerolog.Nop())

	link, err := s.UPILink(UPIRequest{UPIID: "asha.store@okaxis", PayeeName: "Asha Store", Amount: models.MustParseMoney("250.5"), Note: "Khata dues"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, "upi://pay?"))

	q, err := url.ParseQuery(strings.TrimPrefix(link, "upi://pay?"))
	require.NoError(t, err)
	assert.Equal(t, "asha.store@okaxis", q.Get("pa"))
	assert.Equal(t, "Asha Store", q.Get("pn"))
	assert.Equal(t, "250.50", q.Get("am"))
	assert.Equal(t, "INR", q.Get("cu"))
	assert.Equal(t, "Khata dues", q.Get("tn"))

	link, err = s.UPILink(UPIRequest{UPIID: "asha@ybl", PayeeName: "Asha"})
	require.NoError(t, err)
	assert.NotContains(t, link, "am=")

	_, err = s.UPILink(UPIRequest{UPIID: "not-a-vpa", PayeeName: "Asha"})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = s.UPILink(UPIRequest{UPIID: "asha@ybl", PayeeName: " "})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = s.UPILink(UPIRequest{UPIID: "asha@ybl", PayeeName: "Asha", Amount: -1})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestQRService_UPIPaymentQR(t *testing.T) {
	ctx := context.Background()
	req := UPIRequest{UPIID: "asha@ybl", PayeeName: "Asha", Amount: models.Rupees(100)}

	t.Run("renders a png", func(t *testing.T) {
		s := NewQRService(nil, "INR", zerolog.Nop())
		qr, err := s.UPIPaymentQR(ctx, req)
		require.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(qr.ImagePNG)
		require.NoError(t, err)
		img, err := png.Decode(bytes.NewReader(raw))
		require.NoError(t, err)
		assert.Equal(t, 256, img.Bounds().Dx())
	})

	t.Run("serves from the redis cache", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		s := NewQRService(db, "INR", zerolog.Nop())
		link, err := s.UPILink(req)
		require.NoError(t, err)

		mock.ExpectGet("qr:upi:" + link).SetVal("cached-image")
		qr, err := s.UPIPaymentQR(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "cached-image", qr.ImagePNG)
		assert.Equal(t, link, qr.Link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid request never touches redis", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		s := NewQRService(db, "INR", zerolog.Nop())
		_, err := s.UPIPaymentQR(ctx, UPIRequest{UPIID: "bad", PayeeName: "Asha"})
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
