package resend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outflo/outflo/app/models"
	"github.com/outflo/outflo/internal/pkg/ingest"
)

var decodeNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func TestDecode_EmailReceived(t *testing.T) {
	body := []byte(`{
		"type": "email.received",
		"id": "msg_webhook_1",
		"created_at": "2025-03-14T08:00:00.000Z",
		"data": {
			"email_id": "em_123",
			"message_id": " <abc@mail.example> ",
			"from": "Bank Alerts <alerts@bank.example>",
			"to": ["Vault <Alice.Smith@in.outflo.app>", "other@in.outflo.app"],
			"subject": " You spent $12.50 at Cafe X "
		}
	}`)

	d, err := Decode(body, decodeNow)
	require.NoError(t, err)

	assert.Equal(t, models.ProviderResend, d.Provider)
	assert.Equal(t, "em_123", d.EventID)
	assert.Equal(t, "<abc@mail.example>", d.MessageID)
	assert.Equal(t, "alice.smith@in.outflo.app", d.Recipient)
	assert.Equal(t, "alice.smith", d.LocalPart)
	assert.Equal(t, "Bank Alerts <alerts@bank.example>", d.Sender)
	assert.Equal(t, "You spent $12.50 at Cafe X", d.Subject)
	assert.Equal(t, time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC), d.ReceivedAt)
	assert.Equal(t, body, d.Raw)
}

func TestDecode_FallsBackToWebhookID(t *testing.T) {
	d, err := Decode([]byte(`{"id":"msg_1","data":{"to":["bob@in.outflo.app"],"subject":null}}`), decodeNow)
	require.NoError(t, err)
	assert.Equal(t, "msg_1", d.EventID)
	assert.Empty(t, d.Subject)
	assert.Empty(t, d.MessageID)
	assert.Equal(t, decodeNow, d.ReceivedAt)
}

func TestDecode_ReceivedAtSources(t *testing.T) {
	tests := []struct {
		name string
		body string
		want time.Time
	}{
		{
			name: "data created_at with offset",
			body: `{"data":{"email_id":"e","to":["a@b.c"],"created_at":"2025-03-14 10:00:00.123456+00"}}`,
			want: time.Date(2025, 3, 14, 10, 0, 0, 123456000, time.UTC),
		},
		{
			name: "unparseable falls back to now",
			body: `{"created_at":"yesterday","data":{"email_id":"e","to":["a@b.c"]}}`,
			want: decodeNow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Decode([]byte(tt.body), decodeNow)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(d.ReceivedAt), "got %s", d.ReceivedAt)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "not json", body: `not json`, want: ErrInvalidPayload},
		{name: "wrong type for to", body: `{"data":{"email_id":"e","to":"a@b.c"}}`, want: ErrInvalidPayload},
		{name: "no ids", body: `{"data":{"to":["a@b.c"]}}`, want: ingest.ErrMissingEventID},
		{name: "no recipient", body: `{"data":{"email_id":"e","to":[]}}`, want: ingest.ErrMissingRecipient},
		{name: "blank recipient", body: `{"data":{"email_id":"e","to":["  "]}}`, want: ingest.ErrMissingRecipient},
		{name: "recipient without at", body: `{"data":{"email_id":"e","to":["nobody"]}}`, want: ingest.ErrInvalidRecipient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body), decodeNow)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, ingest.IsMalformed(err))
		})
	}
}
