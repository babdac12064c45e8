package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/srt-labs/modelmarket-backend/pkg/enums"
)

// UserSubscription is the mutable entitlement record. At most one row per
// user may be active at any instant; the partial unique index on
// (user_id) WHERE is_active backs that invariant and Version carries the
// optimistic concurrency check.
type UserSubscription struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index"`
	PlanID        uuid.UUID            `gorm:"column:plan_id;type:uuid;not null"`
	StartsAt      time.Time            `gorm:"column:starts_at;not null"`
	EndsAt        *time.Time           `gorm:"column:ends_at"`
	IsActive      bool                 `gorm:"column:is_active;not null;default:false"`
	PaymentStatus *enums.PaymentStatus `gorm:"column:payment_status"`
	Version       int                  `gorm:"column:version;not null;default:1"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
