package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"net/url"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"github.com/udhaari/khata/internal/models"
)

const qrCacheTTL = 10 * time.Minute

// UPIRequest describes a payment the customer should make to the owner.
type UPIRequest struct {
	UPIID     string       `json:"upiId" validate:"required,upi"`
	PayeeName string       `json:"payeeName" validate:"required,max=100"`
	Amount    models.Money `json:"amount,omitempty"`
	Note      string       `json:"note,omitempty" validate:"max=80"`
}

type UPIQR struct {
	Link     string `json:"link"`
	ImagePNG string `json:"image"` // base64
}

// QRService renders UPI payment QR codes. Rendered images are cached in Redis
// when a client is configured.
type QRService struct {
	redis    *redis.Client
	currency string
	logger   zerolog.Logger
}

func NewQRService(redis *redis.Client, currency string, logger zerolog.Logger) *QRService {
	if currency == "" {
		currency = "INR"
	}
	return &QRService{
		redis:    redis,
		currency: currency,
		logger:   logger.With().Str("component", "qr").Logger(),
	}
}

// UPILink builds the upi://pay deep link. A zero amount leaves the amount to the payer.
func (s *QRService) UPILink(req UPIRequest) (string, error) {
	upiID := strings.TrimSpace(req.UPIID)
	if !upiPattern.MatchString(upiID) {
		return "", models.Invalid("upiId", "must look like name@bank")
	}
	if strings.TrimSpace(req.PayeeName) == "" {
		return "", models.Invalid("payeeName", "is required")
	}
	if req.Amount.IsNegative() {
		return "", models.Invalid("amount", "must not be negative")
	}

	q := url.Values{}
	q.Set("pa", upiID)
	q.Set("pn", strings.TrimSpace(req.PayeeName))
	if req.Amount.IsPositive() {
		q.Set("am", req.Amount.String())
	}
	q.Set("cu", s.currency)
	if note := strings.TrimSpace(req.Note); note != "" {
		q.Set("tn", note)
	}
	return "upi://pay?" + q.Encode(), nil
}

func (s *QRService) UPIPaymentQR(ctx context.Context, req UPIRequest) (*UPIQR, error) {
	link, err := s.UPILink(req)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("qr:upi:%s", link)
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, key).Result()
		switch {
		case err == nil:
			return &UPIQR{Link: link, ImagePNG: cached}, nil
		case err != redis.Nil:
			s.logger.Warn().Err(err).Msg("qr cache read")
		}
	}

	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return nil, err
	}
	image := base64.StdEncoding.EncodeToString(buf.Bytes())

	if s.redis != nil {
		if err := s.redis.Set(ctx, key, image, qrCacheTTL).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("qr cache write")
		}
	}
	return &UPIQR{Link: link, ImagePNG: image}, nil
}
