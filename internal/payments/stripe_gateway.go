package payments

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/paymentmethod"

	"github.com/srt-labs/modelmarket-backend/pkg/config"
	"github.com/srt-labs/modelmarket-backend/pkg/enums"
	pkgstripe "github.com/srt-labs/modelmarket-backend/pkg/stripe"
)

// Stripe charges in the currency's minor unit.
var centsPerUnit = decimal.NewFromInt(100)

// StripeGateway implements Gateway against the Stripe API. Every call is
// bounded by the configured gateway timeout so a slow provider can never
// hold a request hostage.
type StripeGateway struct {
	timeout time.Duration
}

// NewStripeGateway wraps the shared Stripe client as a payment gateway.
func NewStripeGateway(client *pkgstripe.Client, cfg config.PaymentsConfig) (*StripeGateway, error) {
	if client == nil {
		return nil, errors.New("stripe client is required")
	}
	timeout := cfg.GatewayTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StripeGateway{timeout: timeout}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, params CreateIntentParams) (*ProviderIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	metadata := map[string]string{
		"user_id": params.UserID.String(),
		"plan_id": params.PlanID.String(),
	}
	for k, v := range params.Metadata {
		metadata[k] = v
	}

	piParams := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(params.Amount.Mul(centsPerUnit).IntPart()),
		Currency: stripe.String(params.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	piParams.Context = ctx
	for k, v := range metadata {
		piParams.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(piParams)
	if err != nil {
		return nil, err
	}
	return providerIntentFromStripe(pi), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, providerIntentID string) (*ProviderIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(providerIntentID, params)
	if err != nil {
		return nil, err
	}
	return providerIntentFromStripe(pi), nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, providerIntentID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := paymentintent.Cancel(providerIntentID, params)
	return err
}

func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, providerMethodID, customerRef string) (*ProviderPaymentMethod, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerRef),
	}
	params.Context = ctx
	pm, err := paymentmethod.Attach(providerMethodID, params)
	if err != nil {
		return nil, err
	}

	out := &ProviderPaymentMethod{ID: pm.ID}
	if pm.Card != nil {
		out.Brand = string(pm.Card.Brand)
		out.Last4 = pm.Card.Last4
		out.ExpMonth = int(pm.Card.ExpMonth)
		out.ExpYear = int(pm.Card.ExpYear)
	}
	return out, nil
}

func providerIntentFromStripe(pi *stripe.PaymentIntent) *ProviderIntent {
	out := &ProviderIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       intentStatusFromStripe(pi),
	}
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		msg := pi.LastPaymentError.Msg
		out.FailureReason = &msg
	}
	return out
}

func intentStatusFromStripe(pi *stripe.PaymentIntent) enums.PaymentIntentStatus {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return enums.PaymentIntentStatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return enums.PaymentIntentStatusCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// Stripe parks a declined intent back in requires_payment_method
		// with the decline recorded on last_payment_error.
		if pi.LastPaymentError != nil {
			return enums.PaymentIntentStatusFailed
		}
		return enums.PaymentIntentStatusPending
	default:
		return enums.PaymentIntentStatusPending
	}
}
