package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	"github.com/srt-labs/modelmarket-backend/pkg/pagination"
)

// Repository handles AI model listing persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, model *models.AIModel) error
	Update(ctx context.Context, model *models.AIModel) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.AIModel, error)
	List(ctx context.Context, params ListModelsQuery) ([]models.AIModel, *pagination.Cursor, error)
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
	IncrementDownloads(ctx context.Context, id uuid.UUID) error
}

// ListModelsQuery configures model list queries. Public listings hide
// private models unless the viewer owns them.
type ListModelsQuery struct {
	ViewerID uuid.UUID
	OwnerID  *uuid.UUID
	Limit    int
	Cursor   string
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, model *models.AIModel) error {
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *repository) Update(ctx context.Context, model *models.AIModel) error {
	return r.db.WithContext(ctx).Save(model).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.AIModel{}, "id = ?", id).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.AIModel, error) {
	if id == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	var model models.AIModel
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &model, nil
}

func (r *repository) List(ctx context.Context, params ListModelsQuery) ([]models.AIModel, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.AIModel{})

	if params.OwnerID != nil {
		query = query.Where("owner_id = ?", *params.OwnerID)
	} else if params.ViewerID != uuid.Nil {
		query = query.Where("is_public OR owner_id = ?", params.ViewerID)
	} else {
		query = query.Where("is_public")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var items []models.AIModel
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&items).Error; err != nil {
		return nil, nil, err
	}

	if len(items) > limit {
		next := items[limit]
		items = items[:limit]
		return items, &pagination.Cursor{
			CreatedAt: next.CreatedAt,
			ID:        next.ID,
		}, nil
	}

	return items, nil, nil
}

func (r *repository) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.AIModel{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) IncrementDownloads(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.AIModel{}).
		Where("id = ?", id).
		Update("download_count", gorm.Expr("download_count + 1")).Error
}
