package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/srt-labs/modelmarket-backend/pkg/enums"
)

// CreateIntentParams captures the inputs for a new provider intent.
type CreateIntentParams struct {
	UserID   uuid.UUID
	PlanID   uuid.UUID
	Amount   decimal.Decimal
	Currency string
	Metadata map[string]string
}

// ProviderIntent is the provider-side view of a payment intent.
type ProviderIntent struct {
	ID            string
	Status        enums.PaymentIntentStatus
	ClientSecret  string
	FailureReason *string
}

// Outcome is the terminal (or still pending) result applied to a local intent.
// It is the single funnel for webhook deliveries, status polls, and cancels.
type Outcome struct {
	Status        enums.PaymentIntentStatus
	FailureReason *string
}

// Gateway abstracts the payment provider. Calls are remote and must be
// bounded by the caller's context; a timeout or transport failure means the
// provider state is unknown, never that the payment failed.
type Gateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*ProviderIntent, error)
	GetIntent(ctx context.Context, providerIntentID string) (*ProviderIntent, error)
	CancelIntent(ctx context.Context, providerIntentID string) error
	AttachPaymentMethod(ctx context.Context, providerMethodID, customerRef string) (*ProviderPaymentMethod, error)
}

// ProviderPaymentMethod is the tokenized card summary returned on attach.
type ProviderPaymentMethod struct {
	ID       string
	Brand    string
	Last4    string
	ExpMonth int
	ExpYear  int
}
