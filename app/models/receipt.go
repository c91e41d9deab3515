package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	ReceiptSourceIngest = "ingest"
	DefaultReceiptPlace = "Unknown"
)

// Receipt is the user-visible ledger entry. Its ID is the originating InboundEvent ID,
// which makes materialization an upsert rather than an insert.
type Receipt struct {
	ID        string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string          `gorm:"type:varchar(64);not null;index:idx_receipts_user_ts,priority:1" json:"user_id"`
	Ts        int64           `gorm:"not null;index:idx_receipts_user_ts,priority:2" json:"ts"`
	Place     string          `gorm:"type:varchar(255);not null" json:"place"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`
	Raw       datatypes.JSON  `json:"raw"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Receipt) TableName() string {
	return "receipts"
}

// ReceiptProvenance is the content of Receipt.Raw for ingested receipts.
type ReceiptProvenance struct {
	Source     string          `json:"source"`
	Provider   string          `json:"provider"`
	EventID    string          `json:"event_id"`
	MessageID  *string         `json:"message_id"`
	ReceivedAt string          `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewReceiptProvenance builds the provenance document for an event.
func NewReceiptProvenance(e *InboundEvent) (datatypes.JSON, error) {
	payload := json.RawMessage(e.Raw)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	b, err := json.Marshal(ReceiptProvenance{
		Source:     ReceiptSourceIngest,
		Provider:   e.Provider,
		EventID:    e.EventID,
		MessageID:  e.MessageID,
		ReceivedAt: e.ReceivedAt.UTC().Format(time.RFC3339Nano),
		Payload:    payload,
	})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
