package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/outflo/outflo/app/models"
)

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new inbound event repository instance
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// CountPending counts events without processed_at.
func (r *eventRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InboundEvent{}).Where("processed_at IS NULL").Count(&count).Error
	return count, err
}

// CountUnbound counts events still waiting for an alias.
func (r *eventRepository) CountUnbound(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InboundEvent{}).Where("user_id IS NULL").Count(&count).Error
	return count, err
}

// CountClaimed counts events currently held by a worker.
func (r *eventRepository) CountClaimed(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InboundEvent{}).Where("claimed_at IS NOT NULL").Count(&count).Error
	return count, err
}

// ListPending returns unprocessed events, oldest first, without raw payloads.
func (r *eventRepository) ListPending(ctx context.Context, limit int) ([]models.InboundEvent, error) {
	var events []models.InboundEvent
	err := r.db.WithContext(ctx).
		Omit("raw").
		Where("processed_at IS NULL").
		Order("received_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
