package ingest

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const releaseTimeout = 5 * time.Second

// ClaimManager grants at most one worker at a time the right to materialize an event.
// All transitions are single conditional updates in the store.
type ClaimManager struct {
	repo Repository
	now  func() time.Time
}

func NewClaimManager(repo Repository, now func() time.Time) *ClaimManager {
	if now == nil {
		now = time.Now
	}
	return &ClaimManager{repo: repo, now: now}
}

// Claim moves an unclaimed, unprocessed event to claimed. It returns nil without error
// when another worker holds the event or it is already processed.
func (m *ClaimManager) Claim(ctx context.Context, eventID string) (*Claim, error) {
	token := uuid.NewString()
	won, err := m.repo.ClaimEvent(ctx, eventID, token, m.now().UTC())
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, nil
	}

	event, err := m.repo.GetEvent(ctx, eventID)
	if err != nil {
		m.releaseByID(ctx, eventID, token)
		return nil, err
	}
	return &Claim{Event: event, Token: token}, nil
}

// Release hands the event back. It runs detached from ctx cancellation so a timed-out
// request still releases what it claimed.
func (m *ClaimManager) Release(ctx context.Context, claim *Claim) {
	if claim == nil || claim.Event == nil {
		return
	}
	m.releaseByID(ctx, claim.Event.ID, claim.Token)
}

func (m *ClaimManager) releaseByID(ctx context.Context, eventID, token string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	released, err := m.repo.ReleaseEvent(rctx, eventID, token)
	if err != nil {
		log.Errorf("[Claim] Failed to release event %s: %v", eventID, err)
		return
	}
	if !released {
		log.Warnf("[Claim] Claim on event %s was no longer held", eventID)
	}
}

// Complete marks the event processed and clears the claim. completed=false means another
// worker completed it first.
func (m *ClaimManager) Complete(ctx context.Context, claim *Claim, processingError string) (bool, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	processedAt := m.now().UTC()
	completed, err := m.repo.CompleteEvent(cctx, claim.Event.ID, processedAt, processingError)
	if err != nil {
		return false, err
	}
	if completed {
		claim.Event.ProcessedAt = &processedAt
		claim.Event.ClaimedAt = nil
		claim.Event.ClaimToken = nil
		claim.Event.ProcessingError = processingError
	}
	return completed, nil
}

// ReleaseStale frees claims older than ttl left behind by crashed workers.
func (m *ClaimManager) ReleaseStale(ctx context.Context, ttl time.Duration) (int64, error) {
	return m.repo.ReleaseStaleClaims(ctx, m.now().UTC().Add(-ttl))
}
