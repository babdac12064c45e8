package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentHistory is an append-only ledger row linking a terminal payment
// intent to its subscription. Rows are never updated or deleted; the unique
// index on payment_intent_id guarantees at most one row per intent.
type PaymentHistory struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	SubscriptionID  uuid.UUID       `gorm:"column:subscription_id;type:uuid;not null"`
	PaymentIntentID uuid.UUID       `gorm:"column:payment_intent_id;type:uuid;not null;uniqueIndex"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency        string          `gorm:"column:currency;not null;default:'usd'"`
	Status          string          `gorm:"column:status;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName keeps the ledger name singular-free like the original schema.
func (PaymentHistory) TableName() string {
	return "payment_history"
}
