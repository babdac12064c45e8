package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	"github.com/srt-labs/modelmarket-backend/pkg/enums"
	"github.com/srt-labs/modelmarket-backend/pkg/pagination"
)

// Repository handles payment persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error
	UpdateIntent(ctx context.Context, intent *models.PaymentIntent) error
	FindIntentByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindIntentByProviderID(ctx context.Context, providerIntentID string) (*models.PaymentIntent, error)
	FindPendingIntentForUser(ctx context.Context, userID uuid.UUID) (*models.PaymentIntent, error)
	ListIntentsForSubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.PaymentIntent, error)
	ListStalePendingIntents(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentIntent, error)
	CreateHistory(ctx context.Context, entry *models.PaymentHistory) error
	ListHistoryByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.PaymentHistory, *pagination.Cursor, error)
	CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) error
	ListPaymentMethodsByUser(ctx context.Context, userID uuid.UUID) ([]models.PaymentMethod, error)
	ClearDefaultPaymentMethod(ctx context.Context, userID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) UpdateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Save(intent).Error
}

func (r *repository) FindIntentByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	if id == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&intent).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindIntentByProviderID(ctx context.Context, providerIntentID string) (*models.PaymentIntent, error) {
	if providerIntentID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", providerIntentID).
		First(&intent).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindPendingIntentForUser(ctx context.Context, userID uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, enums.PaymentIntentStatusPending).
		Order("created_at DESC").
		First(&intent).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

func (r *repository) ListIntentsForSubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

func (r *repository) ListStalePendingIntents(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentIntent, error) {
	if limit <= 0 {
		limit = 250
	}
	var intents []models.PaymentIntent
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.PaymentIntentStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

func (r *repository) CreateHistory(ctx context.Context, entry *models.PaymentHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListHistoryByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.PaymentHistory, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.PaymentHistory{}).Where("user_id = ?", userID)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var entries []models.PaymentHistory
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	if len(entries) > limit {
		next := entries[limit]
		entries = entries[:limit]
		return entries, &pagination.Cursor{
			CreatedAt: next.CreatedAt,
			ID:        next.ID,
		}, nil
	}

	return entries, nil, nil
}

func (r *repository) CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) error {
	return r.db.WithContext(ctx).Create(method).Error
}

func (r *repository) ListPaymentMethodsByUser(ctx context.Context, userID uuid.UUID) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&methods).Error; err != nil {
		return nil, err
	}
	return methods, nil
}

func (r *repository) ClearDefaultPaymentMethod(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentMethod{}).
		Where("user_id = ? AND is_default", userID).
		Update("is_default", false).Error
}
