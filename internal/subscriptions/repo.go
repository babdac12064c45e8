package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	"github.com/srt-labs/modelmarket-backend/pkg/enums"
)

// Repository handles subscription persistence. Activation and deactivation
// are version-checked updates so concurrent resolutions cannot both win.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.UserSubscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.UserSubscription, error)
	FindActiveForUser(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error)
	Activate(ctx context.Context, id uuid.UUID, version int, paymentStatus *enums.PaymentStatus) (bool, error)
	Deactivate(ctx context.Context, id uuid.UUID, version int, endsAt time.Time) (bool, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscriptions repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sub *models.UserSubscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.UserSubscription, error) {
	if id == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	var sub models.UserSubscription
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindActiveForUser(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active", userID).
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// Activate flips the row active if the stored version still matches.
// Returns false when another writer got there first.
func (r *repository) Activate(ctx context.Context, id uuid.UUID, version int, paymentStatus *enums.PaymentStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("id = ? AND version = ? AND NOT is_active", id, version).
		Updates(map[string]any{
			"is_active":      true,
			"ends_at":        nil,
			"payment_status": paymentStatus,
			"starts_at":      time.Now().UTC(),
			"version":        gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Deactivate retires the row if the stored version still matches.
func (r *repository) Deactivate(ctx context.Context, id uuid.UUID, version int, endsAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("id = ? AND version = ? AND is_active", id, version).
		Updates(map[string]any{
			"is_active": false,
			"ends_at":   endsAt,
			"version":   gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) SetPaymentStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("id = ?", id).
		Update("payment_status", status).Error
}
