package ingest

import (
	"context"
	"time"

	"github.com/outflo/outflo/app/models"
)

// Column widths of the free-text event fields. Longer values are cut on intake.
const (
	maxMessageIDLength = 512
	maxRecipientLength = 320
	maxSubjectLength   = 1000
	maxSenderLength    = 320
)

const (
	DefaultReprocessLimit = 25
	MaxReprocessLimit     = 250
)

// Delivery is a provider webhook reduced to the fields the pipeline needs.
type Delivery struct {
	Provider   string `validate:"required,max=32"`
	EventID    string `validate:"required,max=191"`
	MessageID  string
	Recipient  string `validate:"required"`
	LocalPart  string `validate:"required,max=191"`
	Subject    string
	Sender     string
	ReceivedAt time.Time
	Raw        []byte
}

// InsertResult is the Event Store outcome. Event is always the stored row: the new one
// when Inserted is true, the pre-existing one otherwise.
type InsertResult struct {
	Event    *models.InboundEvent
	Inserted bool
}

// Claim is a won claim on an event. Token identifies this holder so a release cannot
// clear a claim that was swept and re-acquired by another worker.
type Claim struct {
	Event *models.InboundEvent
	Token string
}

type IntakeStatus string

const (
	StatusMaterialized IntakeStatus = "materialized"
	StatusHealed       IntakeStatus = "healed"
	StatusUnbound      IntakeStatus = "unbound"
	StatusDuplicate    IntakeStatus = "duplicate"
	StatusInProgress   IntakeStatus = "in_progress"
)

// IntakeResult describes where a delivery ended up in the intake state machine.
type IntakeResult struct {
	Status          IntakeStatus `json:"status"`
	ID              string       `json:"id"`
	ProviderEventID string       `json:"event_id"`
	LocalPart       string       `json:"local_part"`
	UserID          string       `json:"user_id,omitempty"`
	Inserted        bool         `json:"inserted"`
}

// RunStats are the counts of one Batch Reprocessor run.
type RunStats struct {
	Limit        int `json:"limit"`
	Scanned      int `json:"scanned"`
	Claimed      int `json:"claimed"`
	Bound        int `json:"bound"`
	Materialized int `json:"materialized"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
}

// Recorder receives pipeline outcome counters.
type Recorder interface {
	Add(ctx context.Context, field string, delta int64)
}

// Archiver keeps a copy of newly stored raw payloads.
type Archiver interface {
	Archive(ctx context.Context, event *models.InboundEvent) error
}

// Counter fields reported to the Recorder.
const (
	CounterReceived        = "received"
	CounterInserted        = "inserted"
	CounterDuplicate       = "duplicate"
	CounterHealed          = "healed"
	CounterUnbound         = "unbound"
	CounterBound           = "bound"
	CounterMaterialized    = "materialized"
	CounterMaterializeFail = "materialize_failed"
	CounterEnriched        = "enriched"
	CounterEnrichFailed    = "enrich_failed"
	CounterClaimLost       = "claim_lost"
	CounterReprocessRuns   = "reprocess_runs"
	CounterStaleReleased   = "stale_claims_released"
)

// ClampLimit bounds a requested batch size: unset or non-positive means the default.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultReprocessLimit
	}
	if limit > MaxReprocessLimit {
		return MaxReprocessLimit
	}
	return limit
}
