package resend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/outflo/outflo/app/models"
	"github.com/outflo/outflo/internal/pkg/ingest"
)

// ErrInvalidPayload is returned for bodies that are not a Resend webhook envelope.
var ErrInvalidPayload = errors.New("invalid resend payload")

// Payload is the subset of a Resend "email.received" webhook the pipeline reads.
type Payload struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	CreatedAt string      `json:"created_at"`
	Data      PayloadData `json:"data"`
}

type PayloadData struct {
	EmailID   string   `json:"email_id"`
	MessageID *string  `json:"message_id"`
	CreatedAt string   `json:"created_at"`
	From      string   `json:"from"`
	To        []string `json:"to"`
	Subject   *string  `json:"subject"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02T15:04:05",
}

// Decode turns a webhook body into a pipeline delivery. The event id prefers the stable
// email id over the webhook id; received_at falls back to now when absent or unparseable.
func Decode(body []byte, now time.Time) (ingest.Delivery, error) {
	if err := validateEnvelope(body); err != nil {
		return ingest.Delivery{}, fmt.Errorf("%w: %w: %v", ingest.ErrInvalidDelivery, ErrInvalidPayload, err)
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return ingest.Delivery{}, fmt.Errorf("%w: %w: %v", ingest.ErrInvalidDelivery, ErrInvalidPayload, err)
	}

	eventID := firstNonEmpty(p.Data.EmailID, p.ID)
	if eventID == "" {
		return ingest.Delivery{}, ingest.ErrMissingEventID
	}

	recipient := ""
	if len(p.Data.To) > 0 {
		recipient = normalizeAddress(p.Data.To[0])
	}
	if recipient == "" {
		return ingest.Delivery{}, ingest.ErrMissingRecipient
	}
	localPart := ingest.LocalPartFromAddress(recipient)
	if localPart == "" {
		return ingest.Delivery{}, fmt.Errorf("%w: %s", ingest.ErrInvalidRecipient, recipient)
	}

	d := ingest.Delivery{
		Provider:   models.ProviderResend,
		EventID:    eventID,
		Recipient:  recipient,
		LocalPart:  localPart,
		Sender:     strings.TrimSpace(p.Data.From),
		ReceivedAt: pickReceivedAt(p, now),
		Raw:        body,
	}
	if p.Data.MessageID != nil {
		d.MessageID = strings.TrimSpace(*p.Data.MessageID)
	}
	if p.Data.Subject != nil {
		d.Subject = strings.TrimSpace(*p.Data.Subject)
	}
	return d, nil
}

func pickReceivedAt(p Payload, now time.Time) time.Time {
	for _, raw := range []string{p.CreatedAt, p.Data.CreatedAt} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if t, ok := parseTimestamp(raw); ok {
			return t.UTC()
		}
	}
	return now.UTC()
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeAddress accepts "Name <a@b>" as well as bare addresses.
func normalizeAddress(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(s); err == nil {
		s = addr.Address
	}
	return strings.ToLower(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
