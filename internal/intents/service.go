package intents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/veilcare/settlement-backend/pkg/db/models"
	"github.com/veilcare/settlement-backend/pkg/enums"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
	"github.com/veilcare/settlement-backend/pkg/logger"
	"github.com/veilcare/settlement-backend/pkg/pagination"
)

// CreateIntentInput captures everything needed to persist a new intent.
type CreateIntentInput struct {
	FamilyID          uuid.UUID
	ClinicID          uuid.UUID
	AmountCents       int
	Currency          enums.Currency
	InputMethod       enums.InputMethod
	ChainTxRef        string
	GatewayPaymentRef string
}

// Page is one cursor page of intents.
type Page struct {
	Intents    []models.PaymentIntent
	NextCursor string
}

// Service exposes intent lifecycle operations to the API layer. Settlement
// progress itself belongs to the Solver.
type Service interface {
	Create(ctx context.Context, input CreateIntentInput) (*models.PaymentIntent, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	ListByFamily(ctx context.Context, familyID uuid.UUID, params pagination.Params) (*Page, error)
}

type service struct {
	repo      Repository
	publisher Publisher
	logger    *logger.Logger
}

// NewService wires the intent service. The publisher may be nil when process
// triggers are driven synchronously only.
func NewService(repo Repository, publisher Publisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("intent repository required")
	}
	return &service{repo: repo, publisher: publisher, logger: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateIntentInput) (*models.PaymentIntent, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	intent := &models.PaymentIntent{
		FamilyID:    input.FamilyID,
		ClinicID:    input.ClinicID,
		AmountCents: input.AmountCents,
		Currency:    input.Currency,
		InputMethod: input.InputMethod,
		Status:      enums.IntentStatusCreated,
	}
	if ref := strings.TrimSpace(input.ChainTxRef); ref != "" {
		intent.ChainTxRef = &ref
	}
	if ref := strings.TrimSpace(input.GatewayPaymentRef); ref != "" {
		intent.GatewayPaymentRef = &ref
	}

	if err := s.repo.Create(ctx, intent); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishProcess(ctx, intent.ID); err != nil {
			// The intent is persisted; a caller can still trigger
			// processing synchronously.
			if s.logger != nil {
				s.logger.Error(s.logger.WithIntentID(ctx, intent.ID.String()), "publishing process trigger", err)
			}
		}
	}

	if s.logger != nil {
		s.logger.Info(s.logger.WithIntentID(ctx, intent.ID.String()), "payment intent created")
	}
	return intent, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent id is required")
	}
	intent, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "payment intent not found")
		}
		return nil, err
	}
	return intent, nil
}

func (s *service) ListByFamily(ctx context.Context, familyID uuid.UUID, params pagination.Params) (*Page, error) {
	if familyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "family id is required")
	}

	rows, err := s.repo.ListByFamilyID(ctx, familyID, params)
	if err != nil {
		return nil, err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	page := &Page{Intents: rows}
	if len(rows) > limit {
		page.Intents = rows[:limit]
		last := page.Intents[len(page.Intents)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

func validateCreate(input CreateIntentInput) error {
	if input.FamilyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "family id is required")
	}
	if input.ClinicID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "clinic id is required")
	}
	if input.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", input.Currency))
	}
	if !input.InputMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid input method %q", input.InputMethod))
	}
	if input.InputMethod == enums.InputMethodChainWallet && strings.TrimSpace(input.ChainTxRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "chain-funded intents require a transaction reference")
	}
	if input.InputMethod == enums.InputMethodFiatGateway && strings.TrimSpace(input.GatewayPaymentRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway-funded intents require a payment reference")
	}
	return nil
}
