package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/srt-labs/modelmarket-backend/internal/audit"
	"github.com/srt-labs/modelmarket-backend/internal/payments"
	"github.com/srt-labs/modelmarket-backend/pkg/config"
	"github.com/srt-labs/modelmarket-backend/pkg/db"
	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	"github.com/srt-labs/modelmarket-backend/pkg/enums"
	pkgerrors "github.com/srt-labs/modelmarket-backend/pkg/errors"
	"github.com/srt-labs/modelmarket-backend/pkg/logger"
)

type planRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
}

type auditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the subscription lifecycle surface. ResolveIntent is the
// single transition point for payment outcomes: webhook deliveries, status
// polls, and explicit cancels all funnel through it.
type Service interface {
	Subscribe(ctx context.Context, userID uuid.UUID, input SubscribeInput) (*SubscribeResult, error)
	ResolveIntent(ctx context.Context, intentID uuid.UUID, outcome payments.Outcome) (*models.PaymentIntent, error)
	Cancel(ctx context.Context, userID uuid.UUID) error
	GetActive(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error)
}

// SubscribeInput captures a plan change request.
type SubscribeInput struct {
	PlanID   uuid.UUID
	Interval enums.BillingInterval
}

// SubscribeResult reports what Subscribe produced. For paid plans the
// subscription is prospective until its intent resolves.
type SubscribeResult struct {
	Subscription    *models.UserSubscription
	Intent          *models.PaymentIntent
	RequiresPayment bool
}

// ServiceParams groups dependencies for the subscription lifecycle service.
type ServiceParams struct {
	Repo              Repository
	PlanRepo          planRepository
	PaymentsRepo      payments.Repository
	Gateway           payments.Gateway
	Audit             auditRecorder
	TransactionRunner txRunner
	PaymentsConfig    config.PaymentsConfig
	Logger            *logger.Logger
}

type service struct {
	repo        Repository
	plans       planRepository
	payments    payments.Repository
	gateway     payments.Gateway
	audit       auditRecorder
	txRunner    txRunner
	paymentsCfg config.PaymentsConfig
	logg        *logger.Logger
}

// NewService builds a subscription lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscriptions repo required")
	}
	if params.PlanRepo == nil {
		return nil, fmt.Errorf("plan repo required")
	}
	if params.PaymentsRepo == nil {
		return nil, fmt.Errorf("payments repo required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:        params.Repo,
		plans:       params.PlanRepo,
		payments:    params.PaymentsRepo,
		gateway:     params.Gateway,
		audit:       params.Audit,
		txRunner:    params.TransactionRunner,
		paymentsCfg: params.PaymentsConfig,
		logg:        params.Logger,
	}, nil
}

// Subscribe starts a plan change. Free plans activate immediately; paid
// plans create a provider intent first, then persist the prospective
// subscription and intent together. A gateway failure before persistence
// leaves no local rows behind.
func (s *service) Subscribe(ctx context.Context, userID uuid.UUID, input SubscribeInput) (*SubscribeResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan_id is required")
	}
	interval := input.Interval
	if interval == "" {
		interval = enums.BillingIntervalMonthly
	}
	if !interval.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid billing interval")
	}

	plan, err := s.plans.FindByID(ctx, input.PlanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if plan.Status != enums.PlanStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan is not open for subscription")
	}

	active, err := s.repo.FindActiveForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup active subscription")
	}
	if active != nil && active.PlanID == plan.ID {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "already subscribed to this plan")
	}

	pending, err := s.payments.FindPendingIntentForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup pending intent")
	}
	if pending != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a subscription change is already in progress")
	}

	if plan.Tier == enums.SubscriptionTierFree {
		return s.subscribeFree(ctx, userID, plan, active)
	}
	return s.subscribePaid(ctx, userID, plan, active, interval)
}

// subscribeFree activates the free plan in one transaction, no provider involved.
func (s *service) subscribeFree(ctx context.Context, userID uuid.UUID, plan *models.SubscriptionPlan, active *models.UserSubscription) (*SubscribeResult, error) {
	now := time.Now().UTC()
	sub := &models.UserSubscription{
		UserID:   userID,
		PlanID:   plan.ID,
		StartsAt: now,
		IsActive: true,
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if active != nil {
			ok, err := txRepo.Deactivate(ctx, active.ID, active.Version, now)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "subscription changed concurrently")
			}
		}
		return txRepo.Create(ctx, sub)
	})
	if err != nil {
		return nil, wrapUnlessTyped(err, "activate free subscription")
	}

	s.recordAudit(ctx, audit.Entry{
		Type:           enums.LifecycleEventSubscriptionActivated,
		UserID:         userID,
		SubscriptionID: &sub.ID,
		Metadata:       map[string]any{"plan_id": plan.ID.String(), "tier": plan.Tier.String()},
	})

	return &SubscribeResult{Subscription: sub}, nil
}

// subscribePaid creates the provider intent before touching local state, so
// a gateway timeout surfaces as a retryable dependency error with nothing
// persisted. Provider-side orphans from a crash between the two steps are
// accepted and reaped by the staleness sweep on the provider dashboard.
func (s *service) subscribePaid(ctx context.Context, userID uuid.UUID, plan *models.SubscriptionPlan, active *models.UserSubscription, interval enums.BillingInterval) (*SubscribeResult, error) {
	amount := planAmount(plan, interval)
	currency := s.paymentsCfg.Currency
	if currency == "" {
		currency = "usd"
	}

	providerIntent, err := s.gateway.CreateIntent(ctx, payments.CreateIntentParams{
		UserID:   userID,
		PlanID:   plan.ID,
		Amount:   amount,
		Currency: currency,
		Metadata: map[string]string{"interval": interval.String()},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	now := time.Now().UTC()
	sub := &models.UserSubscription{
		UserID:        userID,
		PlanID:        plan.ID,
		StartsAt:      now,
		IsActive:      false,
		PaymentStatus: paymentStatusPtr(enums.PaymentStatusPending),
	}
	intent := &models.PaymentIntent{
		StripePaymentIntentID: providerIntent.ID,
		UserID:                userID,
		Amount:                amount,
		Currency:              currency,
		Status:                enums.PaymentIntentStatusPending,
		ClientSecret:          providerIntent.ClientSecret,
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txSubRepo := s.repo.WithTx(tx)
		txPayRepo := s.payments.WithTx(tx)

		if err := txSubRepo.Create(ctx, sub); err != nil {
			return err
		}
		intent.SubscriptionID = sub.ID
		return txPayRepo.CreateIntent(ctx, intent)
	})
	if err != nil {
		if cancelErr := s.gateway.CancelIntent(ctx, providerIntent.ID); cancelErr != nil && s.logg != nil {
			s.logg.Warn(ctx, "cancel provider intent after persist failure: "+cancelErr.Error())
		}
		// A concurrent request won the pending slot between our pre-check
		// and this insert; the partial unique index is the arbiter.
		if db.IsUniqueViolation(err, "idx_payment_intents_user_pending") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a subscription change is already in progress")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist subscription intent")
	}

	s.recordAudit(ctx, audit.Entry{
		Type:           enums.LifecycleEventSubscriptionRequested,
		UserID:         userID,
		SubscriptionID: &sub.ID,
		Metadata:       map[string]any{"plan_id": plan.ID.String(), "tier": plan.Tier.String()},
	})
	s.recordAudit(ctx, audit.Entry{
		Type:           enums.LifecycleEventIntentCreated,
		UserID:         userID,
		SubscriptionID: &sub.ID,
		IntentID:       &intent.ID,
		Metadata:       map[string]any{"amount": amount.String(), "currency": currency},
	})

	return &SubscribeResult{
		Subscription:    sub,
		Intent:          intent,
		RequiresPayment: true,
	}, nil
}

// ResolveIntent applies a payment outcome to a local intent. Terminal
// intents are returned unchanged, so webhook retries and concurrent polls
// collapse into no-ops.
func (s *service) ResolveIntent(ctx context.Context, intentID uuid.UUID, outcome payments.Outcome) (*models.PaymentIntent, error) {
	if intentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent id is required")
	}
	if !outcome.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid intent outcome")
	}

	intent, err := s.payments.FindIntentByID(ctx, intentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup intent")
	}
	if intent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	if intent.Status.IsTerminal() || outcome.Status == enums.PaymentIntentStatusPending {
		return intent, nil
	}

	switch outcome.Status {
	case enums.PaymentIntentStatusSucceeded:
		return s.resolveSucceeded(ctx, intent)
	case enums.PaymentIntentStatusFailed:
		return s.resolveNotCharged(ctx, intent, enums.PaymentIntentStatusFailed, outcome.FailureReason, enums.LifecycleEventPaymentFailed)
	case enums.PaymentIntentStatusCanceled:
		return s.resolveNotCharged(ctx, intent, enums.PaymentIntentStatusCanceled, outcome.FailureReason, enums.LifecycleEventIntentCanceled)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid intent outcome")
	}
}

func (s *service) resolveSucceeded(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentIntent, error) {
	resolved := intent

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txSubRepo := s.repo.WithTx(tx)
		txPayRepo := s.payments.WithTx(tx)

		stored, err := txPayRepo.FindIntentByID(ctx, intent.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
		}
		if stored.Status.IsTerminal() {
			resolved = stored
			return nil
		}

		target, err := txSubRepo.FindByID(ctx, stored.SubscriptionID)
		if err != nil {
			return err
		}
		if target == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "subscription missing for intent")
		}

		current, err := txSubRepo.FindActiveForUser(ctx, stored.UserID)
		if err != nil {
			return err
		}
		if current != nil && current.ID != target.ID {
			ok, err := txSubRepo.Deactivate(ctx, current.ID, current.Version, time.Now().UTC())
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "subscription changed concurrently")
			}
		}

		if !target.IsActive {
			ok, err := txSubRepo.Activate(ctx, target.ID, target.Version, paymentStatusPtr(enums.PaymentStatusSucceeded))
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "subscription changed concurrently")
			}
		}

		stored.Status = enums.PaymentIntentStatusSucceeded
		stored.FailureReason = nil
		if err := txPayRepo.UpdateIntent(ctx, stored); err != nil {
			return err
		}

		if err := s.appendHistory(ctx, txPayRepo, stored); err != nil {
			return err
		}

		resolved = stored
		return nil
	})
	if err != nil {
		return nil, wrapUnlessTyped(err, "resolve intent")
	}

	if resolved.Status == enums.PaymentIntentStatusSucceeded {
		s.recordAudit(ctx, audit.Entry{
			Type:           enums.LifecycleEventSubscriptionActivated,
			UserID:         resolved.UserID,
			SubscriptionID: &resolved.SubscriptionID,
			IntentID:       &resolved.ID,
		})
	}
	return resolved, nil
}

// resolveNotCharged marks the intent terminal without activating anything.
// The prospective subscription stays inactive with its payment marked failed.
func (s *service) resolveNotCharged(ctx context.Context, intent *models.PaymentIntent, status enums.PaymentIntentStatus, reason *string, eventType enums.LifecycleEventType) (*models.PaymentIntent, error) {
	resolved := intent

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txSubRepo := s.repo.WithTx(tx)
		txPayRepo := s.payments.WithTx(tx)

		stored, err := txPayRepo.FindIntentByID(ctx, intent.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
		}
		if stored.Status.IsTerminal() {
			resolved = stored
			return nil
		}

		stored.Status = status
		stored.FailureReason = reason
		if err := txPayRepo.UpdateIntent(ctx, stored); err != nil {
			return err
		}

		if err := txSubRepo.SetPaymentStatus(ctx, stored.SubscriptionID, enums.PaymentStatusFailed); err != nil {
			return err
		}

		if err := s.appendHistory(ctx, txPayRepo, stored); err != nil {
			return err
		}

		resolved = stored
		return nil
	})
	if err != nil {
		return nil, wrapUnlessTyped(err, "resolve intent")
	}

	if resolved.Status == status {
		s.recordAudit(ctx, audit.Entry{
			Type:           eventType,
			UserID:         resolved.UserID,
			SubscriptionID: &resolved.SubscriptionID,
			IntentID:       &resolved.ID,
			Metadata:       failureMetadata(reason),
		})
	}
	return resolved, nil
}

// appendHistory writes the single ledger row for a terminal intent. A unique
// violation means a concurrent resolution already wrote it, which is fine.
func (s *service) appendHistory(ctx context.Context, repo payments.Repository, intent *models.PaymentIntent) error {
	entry := &models.PaymentHistory{
		UserID:          intent.UserID,
		SubscriptionID:  intent.SubscriptionID,
		PaymentIntentID: intent.ID,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Status:          intent.Status.String(),
	}
	if err := repo.CreateHistory(ctx, entry); err != nil {
		if db.IsUniqueViolation(err, "idx_payment_history_intent_id") {
			return nil
		}
		return err
	}
	return nil
}

// Cancel retires the user's active subscription immediately.
func (s *service) Cancel(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	active, err := s.repo.FindActiveForUser(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup active subscription")
	}
	if active == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no active subscription")
	}

	now := time.Now().UTC()
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Deactivate(ctx, active.ID, active.Version, now)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "subscription changed concurrently")
		}
		return nil
	})
	if err != nil {
		return wrapUnlessTyped(err, "cancel subscription")
	}

	s.recordAudit(ctx, audit.Entry{
		Type:           enums.LifecycleEventSubscriptionCanceled,
		UserID:         userID,
		SubscriptionID: &active.ID,
	})
	return nil
}

// GetActive returns the current active subscription if one exists.
func (s *service) GetActive(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	sub, err := s.repo.FindActiveForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup active subscription")
	}
	return sub, nil
}

// recordAudit never fails the lifecycle operation it trails.
func (s *service) recordAudit(ctx context.Context, entry audit.Entry) {
	if err := s.audit.Record(ctx, entry); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "record audit event: "+err.Error())
	}
}

func planAmount(plan *models.SubscriptionPlan, interval enums.BillingInterval) decimal.Decimal {
	if interval == enums.BillingIntervalYearly {
		return plan.PriceYearly
	}
	return plan.PriceMonthly
}

func paymentStatusPtr(status enums.PaymentStatus) *enums.PaymentStatus {
	return &status
}

func failureMetadata(reason *string) map[string]any {
	if reason == nil || *reason == "" {
		return nil
	}
	return map[string]any{"failure_reason": *reason}
}

// wrapUnlessTyped keeps already-typed errors intact and wraps raw ones.
func wrapUnlessTyped(err error, msg string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
