package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/srt-labs/modelmarket-backend/pkg/enums"
)

// PaymentIntent bridges a subscription change to an external charge attempt.
// Owned by the lifecycle manager; never reused across subscription changes.
type PaymentIntent struct {
	ID                    uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StripePaymentIntentID string                    `gorm:"column:stripe_payment_intent_id;not null;uniqueIndex"`
	UserID                uuid.UUID                 `gorm:"column:user_id;type:uuid;not null;index"`
	SubscriptionID        uuid.UUID                 `gorm:"column:subscription_id;type:uuid;not null"`
	Amount                decimal.Decimal           `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency              string                    `gorm:"column:currency;not null;default:'usd'"`
	Status                enums.PaymentIntentStatus `gorm:"column:status;not null;default:'pending'"`
	ClientSecret          string                    `gorm:"column:client_secret;not null"`
	FailureReason         *string                   `gorm:"column:failure_reason"`
	CreatedAt             time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
