package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ProviderResend = "resend"
)

// InboundEvent is one deduplicated provider delivery. (Provider, EventID) is the
// idempotency key; ClaimedAt/ClaimToken mark the worker currently materializing it and
// ProcessedAt is set exactly once when a receipt exists.
type InboundEvent struct {
	ID              string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Provider        string         `gorm:"type:varchar(32);not null;index:ux_inbound_events_provider_event,unique,priority:1" json:"provider"`
	EventID         string         `gorm:"type:varchar(191);not null;index:ux_inbound_events_provider_event,unique,priority:2" json:"event_id"`
	MessageID       *string        `gorm:"type:varchar(512)" json:"message_id,omitempty"`
	Recipient       string         `gorm:"type:varchar(320);not null;default:''" json:"recipient"`
	LocalPart       string         `gorm:"type:varchar(191);not null;default:'';index" json:"local_part"`
	Subject         string         `gorm:"type:varchar(1000);not null;default:''" json:"subject"`
	Sender          string         `gorm:"type:varchar(320);not null;default:''" json:"sender"`
	ReceivedAt      time.Time      `gorm:"not null;index" json:"received_at"`
	Raw             datatypes.JSON `json:"raw"`
	UserID          *string        `gorm:"type:varchar(64);index" json:"user_id,omitempty"`
	ClaimedAt       *time.Time     `gorm:"default:null" json:"claimed_at,omitempty"`
	ClaimToken      *string        `gorm:"type:varchar(36);default:null" json:"-"`
	ProcessedAt     *time.Time     `gorm:"default:null;index" json:"processed_at,omitempty"`
	ProcessingError string         `gorm:"type:text" json:"processing_error,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (InboundEvent) TableName() string {
	return "inbound_events"
}

// BeforeCreate assigns the stable row id.
func (e *InboundEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

func (e *InboundEvent) IsBound() bool {
	return e.UserID != nil && *e.UserID != ""
}

func (e *InboundEvent) IsProcessed() bool {
	return e.ProcessedAt != nil
}

func (e *InboundEvent) IsClaimed() bool {
	return e.ClaimedAt != nil
}

// NeedsHealing reports whether a row found on a duplicate delivery was left incomplete
// by an earlier attempt.
func (e *InboundEvent) NeedsHealing() bool {
	return !e.IsBound() || !e.IsProcessed()
}

// BoundUserID returns the bound user or "".
func (e *InboundEvent) BoundUserID() string {
	if e.UserID == nil {
		return ""
	}
	return *e.UserID
}
