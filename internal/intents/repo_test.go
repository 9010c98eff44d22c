package intents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/veilcare/settlement-backend/pkg/db/models"
	"github.com/veilcare/settlement-backend/pkg/enums"
	"github.com/veilcare/settlement-backend/pkg/pagination"
)

func setupIntentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
CREATE TABLE IF NOT EXISTS payment_intents (
  id TEXT PRIMARY KEY,
  family_id TEXT NOT NULL,
  clinic_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  input_method TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'created',
  chain_tx_ref TEXT,
  gateway_payment_ref TEXT,
  settlement_rail TEXT,
  settlement_tx_ref TEXT,
  proof_handle TEXT,
  failure_reason TEXT,
  funds_debited BOOLEAN NOT NULL DEFAULT FALSE,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(ddl).Error)
	return db
}

func seedIntentRow(t *testing.T, db *gorm.DB, familyID uuid.UUID, status enums.IntentStatus, createdAt time.Time) *models.PaymentIntent {
	t.Helper()
	intent := &models.PaymentIntent{
		ID:          uuid.New(),
		FamilyID:    familyID,
		ClinicID:    uuid.New(),
		AmountCents: 12500,
		Currency:    enums.CurrencyUSD,
		InputMethod: enums.InputMethodLedgerBalance,
		Status:      status,
		CreatedAt:   createdAt,
	}
	require.NoError(t, db.Create(intent).Error)
	return intent
}

func TestRepository_CreateAndGet(t *testing.T) {
	db := setupIntentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	created := seedIntentRow(t, db, uuid.New(), enums.IntentStatusCreated, time.Now().UTC())

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, enums.IntentStatusCreated, got.Status)
	assert.Equal(t, 12500, got.AmountCents)
	assert.False(t, got.FundsDebited)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_UpdateStatusFromCAS(t *testing.T) {
	db := setupIntentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	intent := seedIntentRow(t, db, uuid.New(), enums.IntentStatusCreated, time.Now().UTC())

	applied, err := repo.UpdateStatusFrom(ctx, intent.ID,
		enums.IntentStatusCreated, enums.IntentStatusFundingDetected,
		map[string]any{"funds_debited": true})
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := repo.GetByID(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusFundingDetected, got.Status)
	assert.True(t, got.FundsDebited)

	// Stale guard: the row no longer holds CREATED, so the write is a no-op.
	applied, err = repo.UpdateStatusFrom(ctx, intent.ID,
		enums.IntentStatusCreated, enums.IntentStatusFundingDetected, nil)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err = repo.GetByID(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusFundingDetected, got.Status)
}

func TestRepository_UpdateStatusFromMissingRow(t *testing.T) {
	db := setupIntentsTestDB(t)
	repo := NewRepository(db)

	_, err := repo.UpdateStatusFrom(context.Background(), uuid.New(),
		enums.IntentStatusCreated, enums.IntentStatusFundingDetected, nil)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestRepository_UpdateStatusFromPersistsFields(t *testing.T) {
	db := setupIntentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	intent := seedIntentRow(t, db, uuid.New(), enums.IntentStatusShielding, time.Now().UTC())

	applied, err := repo.UpdateStatusFrom(ctx, intent.ID,
		enums.IntentStatusShielding, enums.IntentStatusSettled,
		map[string]any{
			"settlement_tx_ref": "0xsettled",
			"proof_handle":      "gs://proofs/p.json",
		})
	require.NoError(t, err)
	require.True(t, applied)

	got, err := repo.GetByID(ctx, intent.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SettlementTxRef)
	assert.Equal(t, "0xsettled", *got.SettlementTxRef)
	require.NotNil(t, got.ProofHandle)
	assert.Equal(t, "gs://proofs/p.json", *got.ProofHandle)
}

func TestRepository_ListByFamilyIDPaginates(t *testing.T) {
	db := setupIntentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	familyID := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var seeded []*models.PaymentIntent
	for i := 0; i < 5; i++ {
		seeded = append(seeded, seedIntentRow(t, db, familyID, enums.IntentStatusCreated, base.Add(time.Duration(i)*time.Minute)))
	}
	// Another family's intent must never leak into the list.
	seedIntentRow(t, db, uuid.New(), enums.IntentStatusCreated, base)

	rows, err := repo.ListByFamilyID(ctx, familyID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	// LimitWithBuffer over-fetches by one so the service can detect more pages.
	require.Len(t, rows, 3)
	assert.Equal(t, seeded[4].ID, rows[0].ID)
	assert.Equal(t, seeded[3].ID, rows[1].ID)

	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: rows[1].CreatedAt, ID: rows[1].ID})
	rows, err = repo.ListByFamilyID(ctx, familyID, pagination.Params{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, seeded[2].ID, rows[0].ID)

	_, err = repo.ListByFamilyID(ctx, familyID, pagination.Params{Limit: 2, Cursor: "not-a-cursor"})
	assert.Error(t, err)
}
