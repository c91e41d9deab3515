package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// IngestAlias routes a recipient local part to a user. Aliases are deactivated, never repointed;
// when several active rows share a local part the newest one wins.
type IngestAlias struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LocalPart string    `gorm:"type:varchar(191);not null;index:idx_ingest_aliases_lookup,priority:1" json:"local_part" validate:"required,max=191,excludesall=@"`
	UserID    string    `gorm:"type:varchar(64);not null;index" json:"user_id" validate:"required,max=64"`
	IsActive  bool      `gorm:"not null;default:true;index:idx_ingest_aliases_lookup,priority:2" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (IngestAlias) TableName() string {
	return "ingest_aliases"
}

func (a *IngestAlias) Validate() error {
	v := validator.New()
	return v.Struct(a)
}
