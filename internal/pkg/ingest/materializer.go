package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/outflo/outflo/app/models"
	"github.com/outflo/outflo/internal/pkg/enrichment"
)

const maxPlaceLength = 255

// Materializer turns a claimed, bound event into its receipt.
type Materializer struct {
	repo     Repository
	claims   *ClaimManager
	registry *enrichment.Registry
	recorder Recorder
	now      func() time.Time
}

func NewMaterializer(repo Repository, claims *ClaimManager, registry *enrichment.Registry, recorder Recorder, now func() time.Time) *Materializer {
	if now == nil {
		now = time.Now
	}
	return &Materializer{
		repo:     repo,
		claims:   claims,
		registry: registry,
		recorder: recorder,
		now:      now,
	}
}

// Materialize upserts the stub receipt, enriches it when a pattern matches and marks the
// event processed. Any failure before completion releases the claim and leaves the event
// for a later attempt; enrichment failures only annotate the event.
func (m *Materializer) Materialize(ctx context.Context, claim *Claim) error {
	if claim == nil || claim.Event == nil {
		return errors.New("materialize: nil claim")
	}
	event := claim.Event
	if event.IsProcessed() {
		// the receipt exists and may have been edited since; never rebuild it
		log.Debugf("[Materializer] Event %s already processed", event.ID)
		return nil
	}
	if !event.IsBound() {
		m.claims.Release(ctx, claim)
		return fmt.Errorf("materialize %s: %w", event.ID, ErrUnbound)
	}

	receipt, err := BuildStubReceipt(event, m.now())
	if err != nil {
		m.claims.Release(ctx, claim)
		return fmt.Errorf("materialize %s: build stub: %w", event.ID, err)
	}
	if err := m.repo.UpsertReceipt(ctx, receipt); err != nil {
		m.claims.Release(ctx, claim)
		return fmt.Errorf("materialize %s: upsert receipt: %w", event.ID, err)
	}

	processingError := m.enrich(ctx, event, receipt)

	completed, err := m.claims.Complete(ctx, claim, processingError)
	if err != nil {
		m.claims.Release(ctx, claim)
		return fmt.Errorf("materialize %s: complete: %w", event.ID, err)
	}
	if !completed {
		log.Debugf("[Materializer] Event %s was already completed by another worker", event.ID)
	}

	log.Infof("[Materializer] Materialized event %s (%s/%s) for user %s", event.ID, event.Provider, event.EventID, event.BoundUserID())
	return nil
}

// enrich updates place/amount in place and returns the failure note for the event, if any.
func (m *Materializer) enrich(ctx context.Context, event *models.InboundEvent, receipt *models.Receipt) string {
	res, name, err := m.registry.Enrich(enrichment.Input{
		Provider: event.Provider,
		Sender:   event.Sender,
		Subject:  event.Subject,
	})
	if errors.Is(err, enrichment.ErrNoMatch) {
		return ""
	}
	if err != nil {
		m.count(ctx, CounterEnrichFailed)
		log.Warnf("[Enrichment] %s failed for event %s: %v", name, event.ID, err)
		return fmt.Sprintf("enrichment %s: %v", name, err)
	}

	place := truncate(res.Place, maxPlaceLength)
	if err := m.repo.UpdateReceiptEnrichment(ctx, receipt.ID, place, res.Amount); err != nil {
		m.count(ctx, CounterEnrichFailed)
		log.Warnf("[Enrichment] Could not update receipt %s: %v", receipt.ID, err)
		return fmt.Sprintf("enrichment %s: update receipt: %v", name, err)
	}
	receipt.Place = place
	receipt.Amount = res.Amount
	m.count(ctx, CounterEnriched)
	return ""
}

func (m *Materializer) count(ctx context.Context, field string) {
	if m.recorder != nil {
		m.recorder.Add(ctx, field, 1)
	}
}

// BuildStubReceipt derives the low-confidence receipt for event: ts from received_at
// (now when unset), place from subject then sender then "Unknown", amount 0.
func BuildStubReceipt(event *models.InboundEvent, now time.Time) (*models.Receipt, error) {
	ts := now.UnixMilli()
	if !event.ReceivedAt.IsZero() {
		ts = event.ReceivedAt.UnixMilli()
	}

	raw, err := models.NewReceiptProvenance(event)
	if err != nil {
		return nil, err
	}

	return &models.Receipt{
		ID:     event.ID,
		UserID: event.BoundUserID(),
		Ts:     ts,
		Place:  truncate(StubPlace(event), maxPlaceLength),
		Amount: decimal.Zero,
		Raw:    raw,
	}, nil
}

// StubPlace picks the default place for an event.
func StubPlace(event *models.InboundEvent) string {
	if s := strings.TrimSpace(event.Subject); s != "" {
		return s
	}
	if s := strings.TrimSpace(event.Sender); s != "" {
		return s
	}
	return models.DefaultReceiptPlace
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
