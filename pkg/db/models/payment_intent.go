package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/veilcare/settlement-backend/pkg/enums"
)

// PaymentIntent is the persisted record of one requested payment and its
// settlement progress. Rows are never deleted; a settled or failed intent is
// the audit trail of a financial transaction.
type PaymentIntent struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FamilyID          uuid.UUID          `gorm:"column:family_id;type:uuid;not null"`
	ClinicID          uuid.UUID          `gorm:"column:clinic_id;type:uuid;not null"`
	AmountCents       int                `gorm:"column:amount_cents;not null"`
	Currency          enums.Currency     `gorm:"column:currency;type:varchar(8);not null;default:'USD'"`
	InputMethod       enums.InputMethod  `gorm:"column:input_method;type:varchar(32);not null"`
	Status            enums.IntentStatus `gorm:"column:status;type:varchar(32);not null;default:'created'"`
	ChainTxRef        *string            `gorm:"column:chain_tx_ref"`
	GatewayPaymentRef *string            `gorm:"column:gateway_payment_ref"`
	SettlementRail    *string            `gorm:"column:settlement_rail"`
	SettlementTxRef   *string            `gorm:"column:settlement_tx_ref"`
	ProofHandle       *string            `gorm:"column:proof_handle"`
	FailureReason     *string            `gorm:"column:failure_reason"`
	FundsDebited      bool               `gorm:"column:funds_debited;not null;default:false"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
