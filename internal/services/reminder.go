package services

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/udhaari/khata/internal/models"
)

// Reminder is a balance summary ready for the messaging collaborators.
type Reminder struct {
	Message     string `json:"message"`
	SMSMessage  string `json:"smsMessage"`
	WhatsAppURL string `json:"whatsappUrl"`
	SMSURL      string `json:"smsUrl"`
}

// BuildReminder formats the customer's balance for chat and SMS.
// The customer must have a phone number.
func BuildReminder(c models.Customer, businessName, currency string) (*Reminder, error) {
	digits := c.PhoneDigits()
	if digits == "" {
		return nil, models.Invalid("phone", "customer has no phone number")
	}
	amount := currencySymbol(currency) + c.Balance.Abs().Display()

	var msg, sms string
	switch {
	case c.Balance.IsPositive():
		msg = fmt.Sprintf("Hello %s, %s is pending to %s. Please pay at the earliest.\n\n- %s", c.Name, amount, businessName, businessName)
		sms = fmt.Sprintf("%s, %s is pending. -%s", c.Name, amount, businessName)
	case c.Balance.IsNegative():
		msg = fmt.Sprintf("Hello %s, %s owes you %s. We will settle it soon.\n\n- %s", c.Name, businessName, amount, businessName)
		sms = fmt.Sprintf("%s, we will pay you %s. -%s", c.Name, amount, businessName)
	default:
		msg = fmt.Sprintf("Hello %s, your account with %s is fully settled. Thank you!\n\n- %s", c.Name, businessName, businessName)
		sms = fmt.Sprintf("%s, your account is settled. -%s", c.Name, businessName)
	}

	return &Reminder{
		Message:     msg,
		SMSMessage:  sms,
		WhatsAppURL: "https://wa.me/" + digits + "?text=" + escapeComponent(msg),
		SMSURL:      "sms:" + strings.TrimSpace(c.Phone) + "?body=" + escapeComponent(sms),
	}, nil
}

func currencySymbol(code string) string {
	switch strings.ToUpper(code) {
	case "", "INR":
		return "₹"
	default:
		return strings.ToUpper(code) + " "
	}
}

// escapeComponent percent-encodes spaces as %20, which SMS apps expect.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
