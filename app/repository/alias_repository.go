package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/outflo/outflo/app/models"
)

type aliasRepository struct {
	db *gorm.DB
}

// NewAliasRepository creates a new alias repository instance
func NewAliasRepository(db *gorm.DB) AliasRepository {
	return &aliasRepository{db: db}
}

func (r *aliasRepository) Create(ctx context.Context, alias *models.IngestAlias) error {
	return r.db.WithContext(ctx).Create(alias).Error
}

func (r *aliasRepository) GetByID(ctx context.Context, id uint) (*models.IngestAlias, error) {
	var alias models.IngestAlias
	if err := r.db.WithContext(ctx).First(&alias, id).Error; err != nil {
		return nil, err
	}
	return &alias, nil
}

// Deactivate turns an alias off; aliases are never repointed or deleted.
func (r *aliasRepository) Deactivate(ctx context.Context, id uint) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.IngestAlias{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	return tx.RowsAffected == 1, tx.Error
}

func (r *aliasRepository) ListByLocalPart(ctx context.Context, localPart string) ([]models.IngestAlias, error) {
	var aliases []models.IngestAlias
	err := r.db.WithContext(ctx).
		Where("local_part = ?", localPart).
		Order("created_at DESC").
		Order("id DESC").
		Find(&aliases).Error
	return aliases, err
}
