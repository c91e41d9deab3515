package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/outflo/outflo/app/models"
	"github.com/outflo/outflo/internal/pkg/enrichment"
)

const archiveTimeout = 5 * time.Second

// Service runs deliveries and backfill batches through the pipeline:
// Event Store -> Alias Resolver -> Claim Manager -> Receipt Materializer.
type Service struct {
	repo         Repository
	store        *EventStore
	resolver     *AliasResolver
	claims       *ClaimManager
	materializer *Materializer
	recorder     Recorder
	archiver     Archiver
	validate     *validator.Validate
	now          func() time.Time
}

type options struct {
	recorder Recorder
	archiver Archiver
	registry *enrichment.Registry
	now      func() time.Time
}

type Option func(*options)

// WithRecorder reports outcome counters to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithArchiver copies newly stored payloads to a.
func WithArchiver(a Archiver) Option {
	return func(o *options) { o.archiver = a }
}

// WithEnrichment replaces the built-in enrichment registry.
func WithEnrichment(reg *enrichment.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewService creates the pipeline from an injected repository.
func NewService(repo Repository, opts ...Option) *Service {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = enrichment.DefaultRegistry()
	}

	claims := NewClaimManager(repo, o.now)
	return &Service{
		repo:         repo,
		store:        NewEventStore(repo),
		resolver:     NewAliasResolver(repo),
		claims:       claims,
		materializer: NewMaterializer(repo, claims, o.registry, o.recorder, o.now),
		recorder:     o.recorder,
		archiver:     o.archiver,
		validate:     validator.New(),
		now:          o.now,
	}
}

// NewServiceFromDB creates the pipeline from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

func (s *Service) Claims() *ClaimManager {
	return s.claims
}

// Ingest stores a delivery and, when its user is known, materializes it before returning.
// Unbound and duplicate deliveries succeed. A duplicate whose stored row is unbound or
// unprocessed is healed by resuming the normal path on that row.
func (s *Service) Ingest(ctx context.Context, d Delivery) (IntakeResult, error) {
	d = normalizeDelivery(d)
	if err := s.validateDelivery(d); err != nil {
		return IntakeResult{}, err
	}
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = s.now().UTC()
	}
	s.count(ctx, CounterReceived)

	stored, err := s.store.Insert(ctx, d)
	if err != nil {
		log.Errorf("[Ingest] Failed to store %s/%s: %v", d.Provider, d.EventID, err)
		return IntakeResult{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	event := stored.Event
	result := IntakeResult{
		ID:              event.ID,
		ProviderEventID: event.EventID,
		LocalPart:       event.LocalPart,
		UserID:          event.BoundUserID(),
		Inserted:        stored.Inserted,
	}

	if stored.Inserted {
		s.count(ctx, CounterInserted)
		s.archive(ctx, event)
	} else {
		s.count(ctx, CounterDuplicate)
		if !event.NeedsHealing() {
			result.Status = StatusDuplicate
			return result, nil
		}
		log.Infof("[Ingest] Duplicate %s/%s found incomplete row %s, healing", event.Provider, event.EventID, event.ID)
	}

	if !event.IsBound() {
		userID, found, err := s.resolver.Resolve(ctx, event.LocalPart)
		if err != nil {
			return result, fmt.Errorf("%w: resolve alias: %w", ErrPersist, err)
		}
		if !found {
			s.count(ctx, CounterUnbound)
			log.Infof("[Ingest] No active alias for %q, event %s left unbound", event.LocalPart, event.ID)
			result.Status = StatusUnbound
			return result, nil
		}
		if _, err := s.bindUser(ctx, event, userID); err != nil {
			return result, fmt.Errorf("%w: bind user: %w", ErrPersist, err)
		}
	}
	result.UserID = event.BoundUserID()

	claim, err := s.claims.Claim(ctx, event.ID)
	if err != nil {
		return result, fmt.Errorf("%w: claim: %w", ErrPersist, err)
	}
	if claim == nil {
		// Another worker holds it, or it completed in the meantime.
		s.count(ctx, CounterClaimLost)
		result.Status = StatusInProgress
		return result, nil
	}

	if err := s.materializer.Materialize(ctx, claim); err != nil {
		s.count(ctx, CounterMaterializeFail)
		log.Errorf("[Ingest] %v", err)
		return result, fmt.Errorf("%w: %w", ErrMaterialize, err)
	}
	s.count(ctx, CounterMaterialized)

	result.Status = StatusMaterialized
	if !stored.Inserted {
		s.count(ctx, CounterHealed)
		result.Status = StatusHealed
	}
	return result, nil
}

// ReleaseStaleClaims frees claims held longer than ttl.
func (s *Service) ReleaseStaleClaims(ctx context.Context, ttl time.Duration) (int64, error) {
	n, err := s.claims.ReleaseStale(ctx, ttl)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Warnf("[Ingest] Released %d stale claims older than %v", n, ttl)
		if s.recorder != nil {
			s.recorder.Add(ctx, CounterStaleReleased, n)
		}
	}
	return n, nil
}

// bindUser sets the event's user once. When another worker bound it first, the stored
// value wins and is copied onto event.
func (s *Service) bindUser(ctx context.Context, event *models.InboundEvent, userID string) (bool, error) {
	bound, err := s.repo.BindUser(ctx, event.ID, userID)
	if err != nil {
		return false, err
	}
	if bound {
		event.UserID = &userID
		s.count(ctx, CounterBound)
		return true, nil
	}

	fresh, err := s.repo.GetEvent(ctx, event.ID)
	if err != nil {
		return false, err
	}
	event.UserID = fresh.UserID
	if !event.IsBound() {
		return false, fmt.Errorf("event %s: %w", event.ID, ErrUnbound)
	}
	return false, nil
}

func (s *Service) archive(ctx context.Context, event *models.InboundEvent) {
	if s.archiver == nil {
		return
	}
	actx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()
	if err := s.archiver.Archive(actx, event); err != nil {
		log.Warnf("[Archive] Could not archive event %s: %v", event.ID, err)
	}
}

func (s *Service) count(ctx context.Context, field string) {
	if s.recorder != nil {
		s.recorder.Add(ctx, field, 1)
	}
}

func normalizeDelivery(d Delivery) Delivery {
	d.Provider = strings.ToLower(strings.TrimSpace(d.Provider))
	d.EventID = strings.TrimSpace(d.EventID)
	d.MessageID = strings.TrimSpace(d.MessageID)
	d.Recipient = strings.ToLower(strings.TrimSpace(d.Recipient))
	d.LocalPart = NormalizeLocalPart(d.LocalPart)
	if d.LocalPart == "" && d.Recipient != "" {
		d.LocalPart = LocalPartFromAddress(d.Recipient)
	}
	d.MessageID = truncate(d.MessageID, maxMessageIDLength)
	d.Recipient = truncate(d.Recipient, maxRecipientLength)
	d.Subject = truncate(strings.TrimSpace(d.Subject), maxSubjectLength)
	d.Sender = truncate(strings.TrimSpace(d.Sender), maxSenderLength)
	return d
}

func (s *Service) validateDelivery(d Delivery) error {
	if d.EventID == "" {
		return ErrMissingEventID
	}
	if d.Recipient == "" {
		return ErrMissingRecipient
	}
	if d.LocalPart == "" {
		return fmt.Errorf("%w: %s", ErrInvalidRecipient, d.Recipient)
	}
	if err := s.validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDelivery, err)
	}
	return nil
}
