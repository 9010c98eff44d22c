package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/veilcare/settlement-backend/pkg/db/models"
	"github.com/veilcare/settlement-backend/pkg/enums"
)

// ErrInsufficientBalance is returned when an atomic deduct finds less than
// the requested amount.
var ErrInsufficientBalance = errors.New("insufficient custodial balance")

// ErrBalanceNotFound is returned when no balance row exists for the wallet
// and asset pair.
var ErrBalanceNotFound = errors.New("custodial balance not found")

// Repository manages persistence for wallets, balances, and ledger events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetWalletByFamilyID(ctx context.Context, familyID uuid.UUID) (*models.FamilyWallet, error)
	GetBalance(ctx context.Context, walletID uuid.UUID, asset enums.Asset) (*models.CustodialBalance, error)
	Deduct(ctx context.Context, walletID uuid.UUID, asset enums.Asset, amount decimal.Decimal) error
	Credit(ctx context.Context, walletID uuid.UUID, asset enums.Asset, amount decimal.Decimal) error
	CreateEvent(ctx context.Context, event *models.LedgerEvent) error
	ListEventsByIntentID(ctx context.Context, intentID uuid.UUID) ([]models.LedgerEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetWalletByFamilyID(ctx context.Context, familyID uuid.UUID) (*models.FamilyWallet, error) {
	var wallet models.FamilyWallet
	if err := r.db.WithContext(ctx).
		Where("family_id = ?", familyID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) GetBalance(ctx context.Context, walletID uuid.UUID, asset enums.Asset) (*models.CustodialBalance, error) {
	var balance models.CustodialBalance
	if err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND asset = ?", walletID, asset).
		First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// Deduct subtracts amount in a single guarded UPDATE. The balance >= amount
// predicate makes concurrent deducts safe without a row lock round trip.
func (r *repository) Deduct(ctx context.Context, walletID uuid.UUID, asset enums.Asset, amount decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.CustodialBalance{}).
		Where("wallet_id = ? AND asset = ? AND balance >= ?", walletID, asset, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish a missing row from a short balance.
		if _, err := r.GetBalance(ctx, walletID, asset); err != nil {
			return err
		}
		return ErrInsufficientBalance
	}
	return nil
}

func (r *repository) Credit(ctx context.Context, walletID uuid.UUID, asset enums.Asset, amount decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.CustodialBalance{}).
		Where("wallet_id = ? AND asset = ?", walletID, asset).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

func (r *repository) CreateEvent(ctx context.Context, event *models.LedgerEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListEventsByIntentID(ctx context.Context, intentID uuid.UUID) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	if err := r.db.WithContext(ctx).
		Where("intent_id = ?", intentID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
