package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/outflo/outflo/app/models"
	"github.com/outflo/outflo/internal/pkg/database"
)

// Repository provides the store operations used by the pipeline. Every mutation is a
// single-row conditional update or upsert; nothing here needs a multi-row transaction.
type Repository interface {
	InsertEvent(ctx context.Context, event *models.InboundEvent) (bool, *models.InboundEvent, error)
	GetEvent(ctx context.Context, id string) (*models.InboundEvent, error)
	FindActiveAlias(ctx context.Context, localPart string) (*models.IngestAlias, error)
	BindUser(ctx context.Context, id, userID string) (bool, error)
	ClaimEvent(ctx context.Context, id, token string, claimedAt time.Time) (bool, error)
	ReleaseEvent(ctx context.Context, id, token string) (bool, error)
	CompleteEvent(ctx context.Context, id string, processedAt time.Time, processingError string) (bool, error)
	ReleaseStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error)
	ListReprocessCandidates(ctx context.Context, limit int) ([]models.InboundEvent, error)
	UpsertReceipt(ctx context.Context, receipt *models.Receipt) error
	UpdateReceiptEnrichment(ctx context.Context, id, place string, amount decimal.Decimal) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a pipeline repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) InsertEvent(ctx context.Context, event *models.InboundEvent) (bool, *models.InboundEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil && !database.IsUniqueViolation(tx.Error) {
		return false, nil, tx.Error
	}

	created := tx.Error == nil && tx.RowsAffected > 0
	var stored models.InboundEvent
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", event.Provider, event.EventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) GetEvent(ctx context.Context, id string) (*models.InboundEvent, error) {
	var event models.InboundEvent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *gormRepository) FindActiveAlias(ctx context.Context, localPart string) (*models.IngestAlias, error) {
	var alias models.IngestAlias
	err := r.db.WithContext(ctx).
		Where("local_part = ? AND is_active = ?", localPart, true).
		Order("created_at DESC").
		Order("id DESC").
		First(&alias).Error
	if err != nil {
		return nil, err
	}
	return &alias, nil
}

func (r *gormRepository) BindUser(ctx context.Context, id, userID string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.InboundEvent{}).
		Where("id = ? AND user_id IS NULL", id).
		Update("user_id", userID)
	return tx.RowsAffected == 1, tx.Error
}

func (r *gormRepository) ClaimEvent(ctx context.Context, id, token string, claimedAt time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.InboundEvent{}).
		Where("id = ? AND claimed_at IS NULL AND processed_at IS NULL", id).
		Updates(map[string]interface{}{
			"claimed_at":  claimedAt,
			"claim_token": token,
		})
	return tx.RowsAffected == 1, tx.Error
}

func (r *gormRepository) ReleaseEvent(ctx context.Context, id, token string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.InboundEvent{}).
		Where("id = ? AND claim_token = ? AND processed_at IS NULL", id, token).
		Updates(map[string]interface{}{
			"claimed_at":  nil,
			"claim_token": nil,
		})
	return tx.RowsAffected == 1, tx.Error
}

func (r *gormRepository) CompleteEvent(ctx context.Context, id string, processedAt time.Time, processingError string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.InboundEvent{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(map[string]interface{}{
			"processed_at":     processedAt,
			"processing_error": processingError,
			"claimed_at":       nil,
			"claim_token":      nil,
		})
	return tx.RowsAffected == 1, tx.Error
}

func (r *gormRepository) ReleaseStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.InboundEvent{}).
		Where("claimed_at IS NOT NULL AND claimed_at < ? AND processed_at IS NULL", claimedBefore).
		Updates(map[string]interface{}{
			"claimed_at":  nil,
			"claim_token": nil,
		})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) ListReprocessCandidates(ctx context.Context, limit int) ([]models.InboundEvent, error) {
	var events []models.InboundEvent
	err := r.db.WithContext(ctx).
		Where("processed_at IS NULL AND claimed_at IS NULL").
		Order("received_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *gormRepository) UpsertReceipt(ctx context.Context, receipt *models.Receipt) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"ts",
			"place",
			"amount",
			"raw",
			"updated_at",
		}),
	}).Create(receipt).Error
}

func (r *gormRepository) UpdateReceiptEnrichment(ctx context.Context, id, place string, amount decimal.Decimal) error {
	tx := r.db.WithContext(ctx).Model(&models.Receipt{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"place":  place,
			"amount": amount,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected > 0 {
		return nil
	}

	// MySQL reports zero affected rows when the values are unchanged.
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Receipt{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("receipt %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}
