package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/veilcare/settlement-backend/pkg/db"
	"github.com/veilcare/settlement-backend/pkg/db/models"
	"github.com/veilcare/settlement-backend/pkg/enums"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
)

// Service exposes the custodial balance operations the settlement pipeline
// performs. Every balance mutation writes a journal entry in the same
// transaction.
type Service interface {
	Wallet(ctx context.Context, familyID uuid.UUID) (*models.FamilyWallet, error)
	Balance(ctx context.Context, familyID uuid.UUID, asset enums.Asset) (decimal.Decimal, error)
	Debit(ctx context.Context, input MovementInput) (*models.LedgerEvent, error)
	Refund(ctx context.Context, input MovementInput) (*models.LedgerEvent, error)
	Credit(ctx context.Context, input MovementInput) (*models.LedgerEvent, error)
	EventsForIntent(ctx context.Context, intentID uuid.UUID) ([]models.LedgerEvent, error)
}

// MovementInput captures the data a single balance movement requires.
type MovementInput struct {
	IntentID uuid.UUID
	FamilyID uuid.UUID
	Asset    enums.Asset
	Amount   decimal.Decimal
	Metadata json.RawMessage
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService wires a ledger service with the provided repository and
// transaction runner.
func NewService(repo Repository, runner txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if runner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: runner}, nil
}

var _ txRunner = (*db.Client)(nil)

func (s *service) Wallet(ctx context.Context, familyID uuid.UUID) (*models.FamilyWallet, error) {
	if familyID == uuid.Nil {
		return nil, fmt.Errorf("family id is required")
	}
	wallet, err := s.repo.GetWalletByFamilyID(ctx, familyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "family wallet not found")
		}
		return nil, err
	}
	return wallet, nil
}

func (s *service) Balance(ctx context.Context, familyID uuid.UUID, asset enums.Asset) (decimal.Decimal, error) {
	if familyID == uuid.Nil {
		return decimal.Zero, fmt.Errorf("family id is required")
	}
	wallet, err := s.repo.GetWalletByFamilyID(ctx, familyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "family wallet not found")
		}
		return decimal.Zero, err
	}
	balance, err := s.repo.GetBalance(ctx, wallet.ID, asset)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return balance.Balance, nil
}

// Debit removes funds from the family balance and journals the movement.
// A short balance surfaces as CodeInsufficientFunds, which is terminal for
// the calling intent.
func (s *service) Debit(ctx context.Context, input MovementInput) (*models.LedgerEvent, error) {
	return s.move(ctx, enums.LedgerEventDebit, input)
}

// Refund is the compensating credit after a debit whose intent later failed.
func (s *service) Refund(ctx context.Context, input MovementInput) (*models.LedgerEvent, error) {
	return s.move(ctx, enums.LedgerEventRefund, input)
}

// Credit adds externally sourced funds to the family balance.
func (s *service) Credit(ctx context.Context, input MovementInput) (*models.LedgerEvent, error) {
	return s.move(ctx, enums.LedgerEventCredit, input)
}

func (s *service) EventsForIntent(ctx context.Context, intentID uuid.UUID) ([]models.LedgerEvent, error) {
	if intentID == uuid.Nil {
		return nil, fmt.Errorf("intent id is required")
	}
	return s.repo.ListEventsByIntentID(ctx, intentID)
}

func (s *service) move(ctx context.Context, eventType enums.LedgerEventType, input MovementInput) (*models.LedgerEvent, error) {
	if input.IntentID == uuid.Nil {
		return nil, fmt.Errorf("intent id is required")
	}
	if input.FamilyID == uuid.Nil {
		return nil, fmt.Errorf("family id is required")
	}
	if !input.Asset.IsValid() {
		return nil, fmt.Errorf("invalid asset %q", input.Asset)
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "movement amount must be positive")
	}

	wallet, err := s.repo.GetWalletByFamilyID(ctx, input.FamilyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "family wallet not found")
		}
		return nil, err
	}

	event := &models.LedgerEvent{
		IntentID: input.IntentID,
		FamilyID: input.FamilyID,
		WalletID: wallet.ID,
		Type:     eventType,
		Asset:    input.Asset,
		Amount:   input.Amount,
		Metadata: input.Metadata,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		switch eventType {
		case enums.LedgerEventDebit:
			if err := repo.Deduct(ctx, wallet.ID, input.Asset, input.Amount); err != nil {
				return err
			}
		case enums.LedgerEventRefund, enums.LedgerEventCredit:
			if err := repo.Credit(ctx, wallet.ID, input.Asset, input.Amount); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported movement type %q", eventType)
		}
		return repo.CreateEvent(ctx, event)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientBalance):
			return nil, pkgerrors.Wrap(pkgerrors.CodeInsufficientFunds, err, "custodial balance too low")
		case errors.Is(err, ErrBalanceNotFound):
			return nil, pkgerrors.Wrap(pkgerrors.CodeInsufficientFunds, err, "no custodial balance for asset")
		}
		return nil, err
	}
	return event, nil
}
