package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/outflo/outflo/app/models"
	"github.com/outflo/outflo/internal/pkg/database"
)

var testNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	db, err := database.Open(database.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func createAlias(t *testing.T, db *gorm.DB, localPart, userID string) *models.IngestAlias {
	t.Helper()
	alias := &models.IngestAlias{LocalPart: localPart, UserID: userID, IsActive: true}
	require.NoError(t, db.Create(alias).Error)
	return alias
}

func delivery(eventID, to, subject string, receivedAt time.Time) Delivery {
	return Delivery{
		Provider:   models.ProviderResend,
		EventID:    eventID,
		Recipient:  to,
		LocalPart:  LocalPartFromAddress(to),
		Subject:    subject,
		Sender:     "alerts@bank.example",
		ReceivedAt: receivedAt,
		Raw:        []byte(fmt.Sprintf(`{"type":"email.received","data":{"email_id":%q}}`, eventID)),
	}
}

func loadEvent(t *testing.T, db *gorm.DB, provider, eventID string) *models.InboundEvent {
	t.Helper()
	var event models.InboundEvent
	require.NoError(t, db.Where("provider = ? AND event_id = ?", provider, eventID).First(&event).Error)
	return &event
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

type memRecorder struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemRecorder() *memRecorder {
	return &memRecorder{counts: map[string]int64{}}
}

func (r *memRecorder) Add(_ context.Context, field string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[field] += delta
}

func (r *memRecorder) get(field string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[field]
}

// failingRepo injects store failures into an otherwise real repository.
type failingRepo struct {
	Repository
	upsertErr  error
	claimLost  bool
	resolveErr error
}

func (r *failingRepo) UpsertReceipt(ctx context.Context, receipt *models.Receipt) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	return r.Repository.UpsertReceipt(ctx, receipt)
}

func (r *failingRepo) ClaimEvent(ctx context.Context, id, token string, claimedAt time.Time) (bool, error) {
	if r.claimLost {
		return false, nil
	}
	return r.Repository.ClaimEvent(ctx, id, token, claimedAt)
}

func (r *failingRepo) FindActiveAlias(ctx context.Context, localPart string) (*models.IngestAlias, error) {
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	return r.Repository.FindActiveAlias(ctx, localPart)
}
