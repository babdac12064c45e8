package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/srt-labs/modelmarket-backend/internal/payments"
	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	"github.com/srt-labs/modelmarket-backend/pkg/enums"
	pkgerrors "github.com/srt-labs/modelmarket-backend/pkg/errors"
)

type intentRepository interface {
	FindIntentByProviderID(ctx context.Context, providerIntentID string) (*models.PaymentIntent, error)
}

type intentResolver interface {
	ResolveIntent(ctx context.Context, intentID uuid.UUID, outcome payments.Outcome) (*models.PaymentIntent, error)
}

// ServiceParams groups dependencies for the webhook handler.
type ServiceParams struct {
	IntentRepo intentRepository
	Resolver   intentResolver
}

// Service translates Stripe payment intent events into lifecycle
// resolutions. Events for unknown intents and unrelated event types are
// acknowledged and dropped, so the provider does not retry them forever.
type Service struct {
	intents  intentRepository
	resolver intentResolver
}

func NewService(params ServiceParams) (*Service, error) {
	if params.IntentRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "intent repo required")
	}
	if params.Resolver == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "intent resolver required")
	}
	return &Service{
		intents:  params.IntentRepo,
		resolver: params.Resolver,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var outcome payments.Outcome
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		outcome = payments.Outcome{Status: enums.PaymentIntentStatusSucceeded}
	case stripe.EventTypePaymentIntentPaymentFailed:
		outcome = payments.Outcome{Status: enums.PaymentIntentStatusFailed}
	case stripe.EventTypePaymentIntentCanceled:
		outcome = payments.Outcome{Status: enums.PaymentIntentStatusCanceled}
	default:
		return nil
	}

	var providerIntent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &providerIntent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
	}
	if providerIntent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	if providerIntent.LastPaymentError != nil && providerIntent.LastPaymentError.Msg != "" {
		msg := providerIntent.LastPaymentError.Msg
		outcome.FailureReason = &msg
	}

	intent, err := s.intents.FindIntentByProviderID(ctx, providerIntent.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup intent")
	}
	if intent == nil {
		// Not one of ours; ack so Stripe stops retrying.
		return nil
	}

	_, err = s.resolver.ResolveIntent(ctx, intent.ID, outcome)
	return err
}
