package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veilcare/settlement-backend/pkg/enums"
)

// CustodialBalance tracks one wallet's holdings in a settlement asset.
// Balances are denominated in the asset's smallest unit (wei for ETH) and
// stored as NUMERIC(78,0) so full 256-bit values survive the round trip.
type CustodialBalance struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID  uuid.UUID       `gorm:"column:wallet_id;type:uuid;not null;uniqueIndex:idx_balances_wallet_asset"`
	Asset     enums.Asset     `gorm:"column:asset;type:varchar(16);not null;uniqueIndex:idx_balances_wallet_asset"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(78,0);not null;default:0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
