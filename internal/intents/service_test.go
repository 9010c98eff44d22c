package intents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/veilcare/settlement-backend/pkg/db/models"
	"github.com/veilcare/settlement-backend/pkg/enums"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
	"github.com/veilcare/settlement-backend/pkg/pagination"
)

type fakePublisher struct {
	published []uuid.UUID
	err       error
}

func (f *fakePublisher) PublishProcess(ctx context.Context, intentID uuid.UUID) error {
	f.published = append(f.published, intentID)
	return f.err
}

func validCreateInput() CreateIntentInput {
	return CreateIntentInput{
		FamilyID:    uuid.New(),
		ClinicID:    uuid.New(),
		AmountCents: 12500,
		Currency:    enums.CurrencyUSD,
		InputMethod: enums.InputMethodLedgerBalance,
	}
}

func TestServiceCreatePersistsAndPublishes(t *testing.T) {
	repo := newMemoryRepo()
	pub := &fakePublisher{}
	svc, err := NewService(repo, pub, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	intent, err := svc.Create(context.Background(), validCreateInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if intent.Status != enums.IntentStatusCreated {
		t.Fatalf("expected created status, got %s", intent.Status)
	}
	if len(pub.published) != 1 || pub.published[0] != intent.ID {
		t.Fatalf("expected one process trigger for %s, got %v", intent.ID, pub.published)
	}

	stored, err := repo.GetByID(context.Background(), intent.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.AmountCents != 12500 {
		t.Fatalf("unexpected amount %d", stored.AmountCents)
	}
}

func TestServiceCreatePublishFailureIsNonFatal(t *testing.T) {
	repo := newMemoryRepo()
	pub := &fakePublisher{err: pkgerrors.New(pkgerrors.CodeDependency, "pubsub unavailable")}
	svc, err := NewService(repo, pub, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	intent, err := svc.Create(context.Background(), validCreateInput())
	if err != nil {
		t.Fatalf("publish failure must not fail creation: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), intent.ID); err != nil {
		t.Fatalf("intent must stay persisted: %v", err)
	}
}

func TestServiceCreateValidation(t *testing.T) {
	svc, err := NewService(newMemoryRepo(), nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*CreateIntentInput)
	}{
		{"missing family", func(i *CreateIntentInput) { i.FamilyID = uuid.Nil }},
		{"missing clinic", func(i *CreateIntentInput) { i.ClinicID = uuid.Nil }},
		{"zero amount", func(i *CreateIntentInput) { i.AmountCents = 0 }},
		{"negative amount", func(i *CreateIntentInput) { i.AmountCents = -5 }},
		{"bad currency", func(i *CreateIntentInput) { i.Currency = "GBP" }},
		{"bad input method", func(i *CreateIntentInput) { i.InputMethod = "carrier_pigeon" }},
		{"chain without ref", func(i *CreateIntentInput) { i.InputMethod = enums.InputMethodChainWallet }},
		{"gateway without ref", func(i *CreateIntentInput) { i.InputMethod = enums.InputMethodFiatGateway }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := validCreateInput()
			tc.mutate(&input)

			_, err := svc.Create(context.Background(), input)
			domainErr := pkgerrors.As(err)
			if domainErr == nil || domainErr.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected CodeValidation, got %v", err)
			}
		})
	}
}

func TestServiceCreateTrimsReferences(t *testing.T) {
	repo := newMemoryRepo()
	svc, err := NewService(repo, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	input := validCreateInput()
	input.InputMethod = enums.InputMethodChainWallet
	input.ChainTxRef = "  0xabc  "

	intent, err := svc.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if intent.ChainTxRef == nil || *intent.ChainTxRef != "0xabc" {
		t.Fatalf("expected trimmed reference, got %v", intent.ChainTxRef)
	}
}

func TestServiceGet(t *testing.T) {
	repo := newMemoryRepo()
	svc, err := NewService(repo, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	intent := &models.PaymentIntent{
		ID:          uuid.New(),
		FamilyID:    uuid.New(),
		ClinicID:    uuid.New(),
		AmountCents: 100,
		Currency:    enums.CurrencyUSD,
		InputMethod: enums.InputMethodLedgerBalance,
		Status:      enums.IntentStatusCreated,
	}
	if err := repo.Create(context.Background(), intent); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := svc.Get(context.Background(), intent.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != intent.ID {
		t.Fatalf("wrong intent %s", got.ID)
	}

	_, err = svc.Get(context.Background(), uuid.New())
	domainErr := pkgerrors.As(err)
	if domainErr == nil || domainErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected CodeNotFound, got %v", err)
	}

	_, err = svc.Get(context.Background(), uuid.Nil)
	domainErr = pkgerrors.As(err)
	if domainErr == nil || domainErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected CodeValidation for nil id, got %v", err)
	}
}

func TestServiceListByFamilyPages(t *testing.T) {
	repo := newMemoryRepo()
	svc, err := NewService(repo, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	familyID := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var rows []models.PaymentIntent
	for i := 0; i < 3; i++ {
		rows = append(rows, models.PaymentIntent{
			ID:        uuid.New(),
			FamilyID:  familyID,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	// The repo over-fetches by one; three rows against limit 2 means a
	// next page exists.
	repo.listRows = rows

	page, err := svc.ListByFamily(context.Background(), familyID, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("ListByFamily: %v", err)
	}
	if len(page.Intents) != 2 {
		t.Fatalf("expected 2 intents, got %d", len(page.Intents))
	}
	if page.NextCursor == "" {
		t.Fatal("expected a next cursor")
	}

	repo.listRows = rows[:2]
	page, err = svc.ListByFamily(context.Background(), familyID, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("ListByFamily: %v", err)
	}
	if page.NextCursor != "" {
		t.Fatal("expected no next cursor on the final page")
	}

	_, err = svc.ListByFamily(context.Background(), uuid.Nil, pagination.Params{})
	domainErr := pkgerrors.As(err)
	if domainErr == nil || domainErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected CodeValidation for nil family id, got %v", err)
	}
}
