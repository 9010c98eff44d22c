package models

import (
	"time"

	"github.com/google/uuid"
)

// FamilyWallet maps a family to its shielded-pool wallet address.
type FamilyWallet struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FamilyID  uuid.UUID `gorm:"column:family_id;type:uuid;not null;uniqueIndex"`
	Address   string    `gorm:"column:address;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
