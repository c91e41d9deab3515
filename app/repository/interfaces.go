package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/outflo/outflo/app/models"
	"github.com/outflo/outflo/internal/pkg/metrics/counter"
)

// MaxReceiptPage caps a ledger listing.
const MaxReceiptPage = 500

// ReceiptRepository defines the ledger reads and the operator reset.
type ReceiptRepository interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Receipt, error)
	GetForUser(ctx context.Context, userID, id string) (*models.Receipt, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// AliasRepository defines alias provisioning. The pipeline itself only reads aliases.
type AliasRepository interface {
	Create(ctx context.Context, alias *models.IngestAlias) error
	GetByID(ctx context.Context, id uint) (*models.IngestAlias, error)
	Deactivate(ctx context.Context, id uint) (bool, error)
	ListByLocalPart(ctx context.Context, localPart string) ([]models.IngestAlias, error)
}

// EventRepository defines the read-only inbound event views used by operators.
type EventRepository interface {
	CountPending(ctx context.Context) (int64, error)
	CountUnbound(ctx context.Context) (int64, error)
	CountClaimed(ctx context.Context) (int64, error)
	ListPending(ctx context.Context, limit int) ([]models.InboundEvent, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Receipt ReceiptRepository
	Alias   AliasRepository
	Event   EventRepository
	Stats   StatsRepository
}

// NewRepositories creates a new instance of all repositories
// recorder may be nil when no cache is configured.
func NewRepositories(db *gorm.DB, recorder *counter.Recorder) *Repositories {
	events := NewEventRepository(db)
	return &Repositories{
		Receipt: NewReceiptRepository(db),
		Alias:   NewAliasRepository(db),
		Event:   events,
		Stats:   NewStatsRepository(recorder, events),
	}
}
