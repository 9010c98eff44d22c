package intents

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/veilcare/settlement-backend/pkg/db/models"
	"github.com/veilcare/settlement-backend/pkg/enums"
	"github.com/veilcare/settlement-backend/pkg/pagination"
)

// Repository manages persistence for payment intents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	ListByFamilyID(ctx context.Context, familyID uuid.UUID, params pagination.Params) ([]models.PaymentIntent, error)
	// UpdateStatusFrom advances status with a compare-and-swap guard: the
	// write applies only while the row still holds the expected status.
	// A failed guard returns (false, nil) — another worker advanced the
	// intent — and must be treated as a no-op by the caller.
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to enums.IntentStatus, fields map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an intent repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) ListByFamilyID(ctx context.Context, familyID uuid.UUID, params pagination.Params) ([]models.PaymentIntent, error) {
	query := r.db.WithContext(ctx).
		Where("family_id = ?", familyID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var intents []models.PaymentIntent
	if err := query.Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

func (r *repository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to enums.IntentStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish a lost CAS race from a missing row.
		if _, err := r.GetByID(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, gorm.ErrRecordNotFound
			}
			return false, err
		}
		return false, nil
	}
	return true, nil
}
