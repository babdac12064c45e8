package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/srt-labs/modelmarket-backend/pkg/enums"
)

// AuditEvent records an immutable subscription lifecycle transition for
// support and operator review.
type AuditEvent struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type           enums.LifecycleEventType `gorm:"column:type;not null;index"`
	UserID         uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	SubscriptionID *uuid.UUID               `gorm:"column:subscription_id;type:uuid"`
	IntentID       *uuid.UUID               `gorm:"column:intent_id;type:uuid"`
	Metadata       json.RawMessage          `gorm:"column:metadata;type:jsonb"`
	CreatedAt      time.Time                `gorm:"column:created_at;autoCreateTime"`
}
