package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/srt-labs/modelmarket-backend/pkg/config"
	"github.com/srt-labs/modelmarket-backend/pkg/db"
	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	"github.com/srt-labs/modelmarket-backend/pkg/enums"
	pkgerrors "github.com/srt-labs/modelmarket-backend/pkg/errors"
	"github.com/srt-labs/modelmarket-backend/pkg/pagination"
)

// intentResolver is the lifecycle manager's resolution funnel. Declared
// locally so the payments package never imports the subscriptions package.
type intentResolver interface {
	ResolveIntent(ctx context.Context, intentID uuid.UUID, outcome Outcome) (*models.PaymentIntent, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes payment operations to controllers and the webhook handler.
type Service struct {
	repo        Repository
	gateway     Gateway
	resolver    intentResolver
	txRunner    txRunner
	paymentsCfg config.PaymentsConfig
}

// ServiceParams groups dependencies for the payments service.
type ServiceParams struct {
	Repo              Repository
	Gateway           Gateway
	Resolver          intentResolver
	TransactionRunner txRunner
	PaymentsConfig    config.PaymentsConfig
}

// NewService builds a payments service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repo required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("intent resolver required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{
		repo:        params.Repo,
		gateway:     params.Gateway,
		resolver:    params.Resolver,
		txRunner:    params.TransactionRunner,
		paymentsCfg: params.PaymentsConfig,
	}, nil
}

// CreateIntent issues a fresh provider intent for a prospective subscription
// whose previous attempt resolved failed or canceled. Each retry gets its
// own intent row; intents are never reused.
func (s *Service) CreateIntent(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.PaymentIntent, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if subscriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription_id is required")
	}

	pending, err := s.repo.FindPendingIntentForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup pending intent")
	}
	if pending != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a payment is already in progress")
	}

	previous, err := s.latestIntentForSubscription(ctx, userID, subscriptionID)
	if err != nil {
		return nil, err
	}

	providerIntent, err := s.gateway.CreateIntent(ctx, CreateIntentParams{
		UserID:   userID,
		Amount:   previous.Amount,
		Currency: previous.Currency,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	intent := &models.PaymentIntent{
		StripePaymentIntentID: providerIntent.ID,
		UserID:                userID,
		SubscriptionID:        subscriptionID,
		Amount:                previous.Amount,
		Currency:              previous.Currency,
		Status:                enums.PaymentIntentStatusPending,
		ClientSecret:          providerIntent.ClientSecret,
	}
	if err := s.repo.CreateIntent(ctx, intent); err != nil {
		if cancelErr := s.gateway.CancelIntent(ctx, providerIntent.ID); cancelErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, cancelErr, "cancel provider intent after persist failure")
		}
		// Lost the pending slot to a concurrent request; the partial
		// unique index is the arbiter.
		if db.IsUniqueViolation(err, "idx_payment_intents_user_pending") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a payment is already in progress")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment intent")
	}
	return intent, nil
}

// PollStatus reconciles a local intent against the provider. Terminal
// intents short-circuit without a provider call; otherwise the provider
// state funnels through the lifecycle resolver.
func (s *Service) PollStatus(ctx context.Context, userID, intentID uuid.UUID) (*models.PaymentIntent, error) {
	intent, err := s.ownedIntent(ctx, userID, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status.IsTerminal() {
		return intent, nil
	}

	providerIntent, err := s.gateway.GetIntent(ctx, intent.StripePaymentIntentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch provider intent")
	}

	return s.resolver.ResolveIntent(ctx, intent.ID, Outcome{
		Status:        providerIntent.Status,
		FailureReason: providerIntent.FailureReason,
	})
}

// CancelIntent abandons a pending intent. The provider cancel goes first;
// once the local intent is terminal, a late success webhook is a no-op.
func (s *Service) CancelIntent(ctx context.Context, userID, intentID uuid.UUID) (*models.PaymentIntent, error) {
	intent, err := s.ownedIntent(ctx, userID, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent already resolved")
	}

	if err := s.gateway.CancelIntent(ctx, intent.StripePaymentIntentID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel provider intent")
	}

	return s.resolver.ResolveIntent(ctx, intent.ID, Outcome{Status: enums.PaymentIntentStatusCanceled})
}

// ListHistory returns the user's append-only payment ledger.
func (s *Service) ListHistory(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.PaymentHistory, *pagination.Cursor, error) {
	if userID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	entries, cursor, err := s.repo.ListHistoryByUser(ctx, userID, params)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payment history")
	}
	return entries, cursor, nil
}

// AttachPaymentMethod tokenizes and stores a provider payment method.
func (s *Service) AttachPaymentMethod(ctx context.Context, userID uuid.UUID, providerMethodID string, makeDefault bool) (*models.PaymentMethod, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	providerMethodID = strings.TrimSpace(providerMethodID)
	if providerMethodID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_method_id is required")
	}

	attached, err := s.gateway.AttachPaymentMethod(ctx, providerMethodID, userID.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach payment method")
	}

	method := &models.PaymentMethod{
		UserID:                userID,
		StripePaymentMethodID: attached.ID,
		IsDefault:             makeDefault,
	}
	if attached.Brand != "" {
		method.CardBrand = &attached.Brand
	}
	if attached.Last4 != "" {
		method.CardLast4 = &attached.Last4
	}
	if attached.ExpMonth > 0 {
		method.CardExpMonth = &attached.ExpMonth
	}
	if attached.ExpYear > 0 {
		method.CardExpYear = &attached.ExpYear
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if makeDefault {
			if err := txRepo.ClearDefaultPaymentMethod(ctx, userID); err != nil {
				return err
			}
		}
		return txRepo.CreatePaymentMethod(ctx, method)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment method")
	}
	return method, nil
}

// ListPaymentMethods returns the user's stored payment methods.
func (s *Service) ListPaymentMethods(ctx context.Context, userID uuid.UUID) ([]models.PaymentMethod, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	methods, err := s.repo.ListPaymentMethodsByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payment methods")
	}
	return methods, nil
}

// ListStalePending surfaces pending intents older than the configured window
// for the cron sweep. Stale intents are reported, never auto-expired.
func (s *Service) ListStalePending(ctx context.Context, limit int) ([]models.PaymentIntent, error) {
	window := s.paymentsCfg.StaleIntentAfter
	if window <= 0 {
		window = 24 * time.Hour
	}
	cutoff := time.Now().UTC().Add(-window)
	intents, err := s.repo.ListStalePendingIntents(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stale intents")
	}
	return intents, nil
}

func (s *Service) ownedIntent(ctx context.Context, userID, intentID uuid.UUID) (*models.PaymentIntent, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if intentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent id is required")
	}
	intent, err := s.repo.FindIntentByID(ctx, intentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup intent")
	}
	if intent == nil || intent.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	return intent, nil
}

// latestIntentForSubscription loads the most recent intent so a retry can
// reuse the original amount. The previous intent must be terminal.
func (s *Service) latestIntentForSubscription(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.PaymentIntent, error) {
	intents, err := s.repo.ListIntentsForSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list subscription intents")
	}
	if len(intents) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment intent to retry")
	}
	latest := &intents[0]
	if latest.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment intent to retry")
	}
	if !latest.Status.IsTerminal() || latest.Status == enums.PaymentIntentStatusSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription payment is not retryable")
	}
	return latest, nil
}
