package ingest

import (
	"context"
	"encoding/json"
	"strings"

	"gorm.io/datatypes"

	"github.com/outflo/outflo/app/models"
)

// EventStore persists raw deliveries, deduplicated on (provider, event_id).
type EventStore struct {
	repo Repository
}

func NewEventStore(repo Repository) *EventStore {
	return &EventStore{repo: repo}
}

// Insert stores d unless an event with the same provider and event id exists. A collision
// is not an error: the existing row comes back with Inserted=false so the caller can
// decide whether it needs healing.
func (s *EventStore) Insert(ctx context.Context, d Delivery) (InsertResult, error) {
	event := &models.InboundEvent{
		Provider:   d.Provider,
		EventID:    d.EventID,
		Recipient:  d.Recipient,
		LocalPart:  d.LocalPart,
		Subject:    d.Subject,
		Sender:     d.Sender,
		ReceivedAt: d.ReceivedAt.UTC(),
		Raw:        rawJSON(d.Raw),
	}
	if msgID := strings.TrimSpace(d.MessageID); msgID != "" {
		event.MessageID = &msgID
	}

	inserted, stored, err := s.repo.InsertEvent(ctx, event)
	if err != nil {
		return InsertResult{}, err
	}
	return InsertResult{Event: stored, Inserted: inserted}, nil
}

func rawJSON(raw []byte) datatypes.JSON {
	if len(raw) == 0 || !json.Valid(raw) {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(append([]byte(nil), raw...))
}
