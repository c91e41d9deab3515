package ingest

import "errors"

var (
	ErrMissingEventID   = errors.New("missing event id")
	ErrMissingRecipient = errors.New("missing recipient")
	ErrInvalidRecipient = errors.New("invalid recipient address")
	ErrInvalidDelivery  = errors.New("invalid delivery")

	// ErrPersist wraps store failures on the intake path; the provider is expected to retry.
	ErrPersist = errors.New("event store write failed")
	// ErrMaterialize wraps failures after the event was stored and claimed.
	ErrMaterialize = errors.New("materialization failed")
	ErrUnbound     = errors.New("event has no bound user")
)

// IsMalformed reports errors for payloads that can never succeed and must not be stored.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMissingEventID) ||
		errors.Is(err, ErrMissingRecipient) ||
		errors.Is(err, ErrInvalidRecipient) ||
		errors.Is(err, ErrInvalidDelivery)
}
