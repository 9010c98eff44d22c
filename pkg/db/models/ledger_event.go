package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veilcare/settlement-backend/pkg/enums"
)

// LedgerEvent is one append-only entry in the custodial balance journal.
type LedgerEvent struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	IntentID  uuid.UUID             `gorm:"column:intent_id;type:uuid;not null;index"`
	FamilyID  uuid.UUID             `gorm:"column:family_id;type:uuid;not null;index"`
	WalletID  uuid.UUID             `gorm:"column:wallet_id;type:uuid;not null"`
	Type      enums.LedgerEventType `gorm:"column:type;type:varchar(16);not null"`
	Asset     enums.Asset           `gorm:"column:asset;type:varchar(16);not null"`
	Amount    decimal.Decimal       `gorm:"column:amount;type:numeric(78,0);not null"`
	Metadata  json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}
