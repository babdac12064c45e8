package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/srt-labs/modelmarket-backend/pkg/enums"
)

// SubscriptionPlan is an immutable catalog entry. Published plans are never
// mutated; a price change means a new plan row.
type SubscriptionPlan struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name              string                 `gorm:"column:name;not null"`
	Tier              enums.SubscriptionTier `gorm:"column:tier;not null"`
	Status            enums.PlanStatus       `gorm:"column:status;not null;default:'active'"`
	PriceMonthly      decimal.Decimal        `gorm:"column:price_monthly;type:numeric(12,2);not null"`
	PriceYearly       decimal.Decimal        `gorm:"column:price_yearly;type:numeric(12,2);not null"`
	ModelLimit        int                    `gorm:"column:model_limit;not null;default:0"`
	DailyRequestQuota int                    `gorm:"column:daily_request_quota;not null;default:0"`
	SupportLevel      string                 `gorm:"column:support_level;not null;default:'community'"`
	Features          pq.StringArray         `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
