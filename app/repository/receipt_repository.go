package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/outflo/outflo/app/models"
)

type receiptRepository struct {
	db *gorm.DB
}

// NewReceiptRepository creates a new receipt repository instance
func NewReceiptRepository(db *gorm.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

// ListByUser returns the newest receipts first, at most MaxReceiptPage.
func (r *receiptRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Receipt, error) {
	if limit <= 0 || limit > MaxReceiptPage {
		limit = MaxReceiptPage
	}
	var receipts []models.Receipt
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("ts DESC").
		Order("id DESC").
		Limit(limit).
		Find(&receipts).Error
	return receipts, err
}

// GetForUser returns gorm.ErrRecordNotFound for receipts owned by someone else.
func (r *receiptRepository) GetForUser(ctx context.Context, userID, id string) (*models.Receipt, error) {
	var receipt models.Receipt
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&receipt).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *receiptRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Receipt{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *receiptRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tx := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Receipt{})
	return tx.RowsAffected, tx.Error
}
