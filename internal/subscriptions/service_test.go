package subscriptions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/srt-labs/modelmarket-backend/internal/audit"
	"github.com/srt-labs/modelmarket-backend/internal/payments"
	"github.com/srt-labs/modelmarket-backend/pkg/config"
	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	"github.com/srt-labs/modelmarket-backend/pkg/enums"
	pkgerrors "github.com/srt-labs/modelmarket-backend/pkg/errors"
	"github.com/srt-labs/modelmarket-backend/pkg/pagination"
)

type stubSubRepo struct {
	createFn       func(ctx context.Context, sub *models.UserSubscription) error
	findByIDFn     func(ctx context.Context, id uuid.UUID) (*models.UserSubscription, error)
	findActiveFn   func(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error)
	activateFn     func(ctx context.Context, id uuid.UUID, version int, paymentStatus *enums.PaymentStatus) (bool, error)
	deactivateFn   func(ctx context.Context, id uuid.UUID, version int, endsAt time.Time) (bool, error)
	setPayStatusFn func(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) error

	creates     int
	deactivates int
}

func (s *stubSubRepo) WithTx(tx *gorm.DB) Repository { return s }
func (s *stubSubRepo) Create(ctx context.Context, sub *models.UserSubscription) error {
	s.creates++
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if s.createFn != nil {
		return s.createFn(ctx, sub)
	}
	return nil
}
func (s *stubSubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.UserSubscription, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (s *stubSubRepo) FindActiveForUser(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error) {
	if s.findActiveFn != nil {
		return s.findActiveFn(ctx, userID)
	}
	return nil, nil
}
func (s *stubSubRepo) Activate(ctx context.Context, id uuid.UUID, version int, paymentStatus *enums.PaymentStatus) (bool, error) {
	if s.activateFn != nil {
		return s.activateFn(ctx, id, version, paymentStatus)
	}
	return true, nil
}
func (s *stubSubRepo) Deactivate(ctx context.Context, id uuid.UUID, version int, endsAt time.Time) (bool, error) {
	s.deactivates++
	if s.deactivateFn != nil {
		return s.deactivateFn(ctx, id, version, endsAt)
	}
	return true, nil
}
func (s *stubSubRepo) SetPaymentStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) error {
	if s.setPayStatusFn != nil {
		return s.setPayStatusFn(ctx, id, status)
	}
	return nil
}

type stubPayRepo struct {
	createIntentFn  func(ctx context.Context, intent *models.PaymentIntent) error
	updateIntentFn  func(ctx context.Context, intent *models.PaymentIntent) error
	findIntentFn    func(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	findPendingFn   func(ctx context.Context, userID uuid.UUID) (*models.PaymentIntent, error)
	createHistoryFn func(ctx context.Context, entry *models.PaymentHistory) error

	intentCreates  int
	intentUpdates  int
	historyCreates int
}

func (s *stubPayRepo) WithTx(tx *gorm.DB) payments.Repository { return s }
func (s *stubPayRepo) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	s.intentCreates++
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	if s.createIntentFn != nil {
		return s.createIntentFn(ctx, intent)
	}
	return nil
}
func (s *stubPayRepo) UpdateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	s.intentUpdates++
	if s.updateIntentFn != nil {
		return s.updateIntentFn(ctx, intent)
	}
	return nil
}
func (s *stubPayRepo) FindIntentByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	if s.findIntentFn != nil {
		return s.findIntentFn(ctx, id)
	}
	return nil, nil
}
func (s *stubPayRepo) FindIntentByProviderID(ctx context.Context, providerIntentID string) (*models.PaymentIntent, error) {
	return nil, nil
}
func (s *stubPayRepo) FindPendingIntentForUser(ctx context.Context, userID uuid.UUID) (*models.PaymentIntent, error) {
	if s.findPendingFn != nil {
		return s.findPendingFn(ctx, userID)
	}
	return nil, nil
}
func (s *stubPayRepo) ListIntentsForSubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.PaymentIntent, error) {
	return nil, nil
}
func (s *stubPayRepo) ListStalePendingIntents(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentIntent, error) {
	return nil, nil
}
func (s *stubPayRepo) CreateHistory(ctx context.Context, entry *models.PaymentHistory) error {
	s.historyCreates++
	if s.createHistoryFn != nil {
		return s.createHistoryFn(ctx, entry)
	}
	return nil
}
func (s *stubPayRepo) ListHistoryByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.PaymentHistory, *pagination.Cursor, error) {
	return nil, nil, nil
}
func (s *stubPayRepo) CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) error {
	return nil
}
func (s *stubPayRepo) ListPaymentMethodsByUser(ctx context.Context, userID uuid.UUID) ([]models.PaymentMethod, error) {
	return nil, nil
}
func (s *stubPayRepo) ClearDefaultPaymentMethod(ctx context.Context, userID uuid.UUID) error {
	return nil
}

type stubGateway struct {
	createIntentFn func(ctx context.Context, params payments.CreateIntentParams) (*payments.ProviderIntent, error)

	createCalls int
	canceled    []string
}

func (s *stubGateway) CreateIntent(ctx context.Context, params payments.CreateIntentParams) (*payments.ProviderIntent, error) {
	s.createCalls++
	if s.createIntentFn != nil {
		return s.createIntentFn(ctx, params)
	}
	return &payments.ProviderIntent{
		ID:           "pi_stub",
		Status:       enums.PaymentIntentStatusPending,
		ClientSecret: "pi_stub_secret",
	}, nil
}
func (s *stubGateway) GetIntent(ctx context.Context, providerIntentID string) (*payments.ProviderIntent, error) {
	return nil, nil
}
func (s *stubGateway) CancelIntent(ctx context.Context, providerIntentID string) error {
	s.canceled = append(s.canceled, providerIntentID)
	return nil
}
func (s *stubGateway) AttachPaymentMethod(ctx context.Context, providerMethodID, customerRef string) (*payments.ProviderPaymentMethod, error) {
	return nil, nil
}

type stubPlanRepo struct {
	findByIDFn func(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
}

func (s *stubPlanRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, id)
	}
	return nil, nil
}

type stubAuditSink struct {
	entries []audit.Entry
}

func (s *stubAuditSink) Record(ctx context.Context, entry audit.Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubAuditSink) has(eventType enums.LifecycleEventType) bool {
	for _, entry := range s.entries {
		if entry.Type == eventType {
			return true
		}
	}
	return false
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type lifecycleFixture struct {
	subs    *stubSubRepo
	pay     *stubPayRepo
	plans   *stubPlanRepo
	gateway *stubGateway
	sink    *stubAuditSink
	svc     Service
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()

	f := &lifecycleFixture{
		subs:    &stubSubRepo{},
		pay:     &stubPayRepo{},
		plans:   &stubPlanRepo{},
		gateway: &stubGateway{},
		sink:    &stubAuditSink{},
	}
	svc, err := NewService(ServiceParams{
		Repo:              f.subs,
		PlanRepo:          f.plans,
		PaymentsRepo:      f.pay,
		Gateway:           f.gateway,
		Audit:             f.sink,
		TransactionRunner: stubTxRunner{},
		PaymentsConfig:    config.PaymentsConfig{Currency: "usd"},
	})
	if err != nil {
		t.Fatalf("unexpected error building service: %v", err)
	}
	f.svc = svc
	return f
}

func proPlan() *models.SubscriptionPlan {
	return &models.SubscriptionPlan{
		ID:           uuid.New(),
		Name:         "Pro",
		Tier:         enums.SubscriptionTierPro,
		Status:       enums.PlanStatusActive,
		PriceMonthly: decimal.NewFromInt(29),
		PriceYearly:  decimal.NewFromInt(290),
	}
}

func freePlan() *models.SubscriptionPlan {
	return &models.SubscriptionPlan{
		ID:     uuid.New(),
		Name:   "Free",
		Tier:   enums.SubscriptionTierFree,
		Status: enums.PlanStatusActive,
	}
}

func TestSubscribeValidatesInput(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Subscribe(ctx, uuid.Nil, SubscribeInput{PlanID: uuid.New()}); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for missing user, got %v", err)
	}
	if _, err := f.svc.Subscribe(ctx, uuid.New(), SubscribeInput{}); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for missing plan, got %v", err)
	}
	if _, err := f.svc.Subscribe(ctx, uuid.New(), SubscribeInput{PlanID: uuid.New(), Interval: "weekly"}); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for bad interval, got %v", err)
	}
}

func TestSubscribeUnknownPlan(t *testing.T) {
	f := newLifecycleFixture(t)
	_, err := f.svc.Subscribe(context.Background(), uuid.New(), SubscribeInput{PlanID: uuid.New()})
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubscribeRetiredPlan(t *testing.T) {
	f := newLifecycleFixture(t)
	plan := proPlan()
	plan.Status = enums.PlanStatusDeprecated
	f.plans.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
		return plan, nil
	}

	_, err := f.svc.Subscribe(context.Background(), uuid.New(), SubscribeInput{PlanID: plan.ID})
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestSubscribeSamePlanRejected(t *testing.T) {
	f := newLifecycleFixture(t)
	plan := proPlan()
	userID := uuid.New()
	f.plans.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
		return plan, nil
	}
	f.subs.findActiveFn = func(ctx context.Context, uid uuid.UUID) (*models.UserSubscription, error) {
		return &models.UserSubscription{ID: uuid.New(), UserID: userID, PlanID: plan.ID, IsActive: true, Version: 1}, nil
	}

	_, err := f.svc.Subscribe(context.Background(), userID, SubscribeInput{PlanID: plan.ID})
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestSubscribeBlockedByPendingIntent(t *testing.T) {
	f := newLifecycleFixture(t)
	plan := proPlan()
	f.plans.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
		return plan, nil
	}
	f.pay.findPendingFn = func(ctx context.Context, userID uuid.UUID) (*models.PaymentIntent, error) {
		return &models.PaymentIntent{ID: uuid.New(), Status: enums.PaymentIntentStatusPending}, nil
	}

	_, err := f.svc.Subscribe(context.Background(), uuid.New(), SubscribeInput{PlanID: plan.ID})
	if pkgerrors.As(err).Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if f.gateway.createCalls != 0 {
		t.Fatal("gateway should not be called while an intent is pending")
	}
}

func TestSubscribeFreeActivatesImmediately(t *testing.T) {
	f := newLifecycleFixture(t)
	plan := freePlan()
	userID := uuid.New()
	current := &models.UserSubscription{ID: uuid.New(), UserID: userID, PlanID: uuid.New(), IsActive: true, Version: 3}

	f.plans.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
		return plan, nil
	}
	f.subs.findActiveFn = func(ctx context.Context, uid uuid.UUID) (*models.UserSubscription, error) {
		return current, nil
	}
	var deactivatedVersion int
	f.subs.deactivateFn = func(ctx context.Context, id uuid.UUID, version int, endsAt time.Time) (bool, error) {
		deactivatedVersion = version
		return true, nil
	}

	result, err := f.svc.Subscribe(context.Background(), userID, SubscribeInput{PlanID: plan.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RequiresPayment || result.Intent != nil {
		t.Fatal("free plan must not require payment")
	}
	if !result.Subscription.IsActive {
		t.Fatal("free subscription should be active immediately")
	}
	if deactivatedVersion != current.Version {
		t.Fatalf("expected deactivate with version %d, got %d", current.Version, deactivatedVersion)
	}
	if f.gateway.createCalls != 0 {
		t.Fatal("free plan must not touch the payment provider")
	}
	if !f.sink.has(enums.LifecycleEventSubscriptionActivated) {
		t.Fatal("expected activation audit event")
	}
}

func TestSubscribeFreeConcurrentChange(t *testing.T) {
	f := newLifecycleFixture(t)
	plan := freePlan()
	userID := uuid.New()
	f.plans.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
		return plan, nil
	}
	f.subs.findActiveFn = func(ctx context.Context, uid uuid.UUID) (*models.UserSubscription, error) {
		return &models.UserSubscription{ID: uuid.New(), UserID: userID, PlanID: uuid.New(), IsActive: true, Version: 1}, nil
	}
	f.subs.deactivateFn = func(ctx context.Context, id uuid.UUID, version int, endsAt time.Time) (bool, error) {
		return false, nil
	}

	_, err := f.svc.Subscribe(context.Background(), userID, SubscribeInput{PlanID: plan.ID})
	if pkgerrors.As(err).Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict on version mismatch, got %v", err)
	}
}

func TestSubscribePaidCreatesPendingIntent(t *testing.T) {
	f := newLifecycleFixture(t)
	plan := proPlan()
	userID := uuid.New()
	f.plans.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
		return plan, nil
	}
	var gwParams payments.CreateIntentParams
	f.gateway.createIntentFn = func(ctx context.Context, params payments.CreateIntentParams) (*payments.ProviderIntent, error) {
		gwParams = params
		return &payments.ProviderIntent{ID: "pi_123", Status: enums.PaymentIntentStatusPending, ClientSecret: "secret_123"}, nil
	}

	result, err := f.svc.Subscribe(context.Background(), userID, SubscribeInput{PlanID: plan.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.RequiresPayment || result.Intent == nil {
		t.Fatal("paid plan must require payment")
	}
	if result.Subscription.IsActive {
		t.Fatal("paid subscription must stay inactive until the intent resolves")
	}
	if result.Intent.Status != enums.PaymentIntentStatusPending {
		t.Fatalf("expected pending intent, got %s", result.Intent.Status)
	}
	if result.Intent.SubscriptionID != result.Subscription.ID {
		t.Fatal("intent not linked to subscription")
	}
	if result.Intent.StripePaymentIntentID != "pi_123" || result.Intent.ClientSecret != "secret_123" {
		t.Fatal("provider intent fields not carried over")
	}
	if !gwParams.Amount.Equal(plan.PriceMonthly) {
		t.Fatalf("expected monthly amount %s, got %s", plan.PriceMonthly, gwParams.Amount)
	}
	if !f.sink.has(enums.LifecycleEventSubscriptionRequested) || !f.sink.has(enums.LifecycleEventIntentCreated) {
		t.Fatal("expected requested and intent created audit events")
	}
}

func TestSubscribePaidYearlyUsesYearlyPrice(t *testing.T) {
	f := newLifecycleFixture(t)
	plan := proPlan()
	f.plans.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
		return plan, nil
	}
	var amount decimal.Decimal
	f.gateway.createIntentFn = func(ctx context.Context, params payments.CreateIntentParams) (*payments.ProviderIntent, error) {
		amount = params.Amount
		return &payments.ProviderIntent{ID: "pi_y", Status: enums.PaymentIntentStatusPending}, nil
	}

	if _, err := f.svc.Subscribe(context.Background(), uuid.New(), SubscribeInput{
		PlanID:   plan.ID,
		Interval: enums.BillingIntervalYearly,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !amount.Equal(plan.PriceYearly) {
		t.Fatalf("expected yearly amount %s, got %s", plan.PriceYearly, amount)
	}
}

func TestSubscribePaidGatewayDownLeavesNoRows(t *testing.T) {
	f := newLifecycleFixture(t)
	plan := proPlan()
	f.plans.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
		return plan, nil
	}
	f.gateway.createIntentFn = func(ctx context.Context, params payments.CreateIntentParams) (*payments.ProviderIntent, error) {
		return nil, errors.New("connection timed out")
	}

	_, err := f.svc.Subscribe(context.Background(), uuid.New(), SubscribeInput{PlanID: plan.ID})
	if pkgerrors.As(err).Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if !pkgerrors.MetadataFor(pkgerrors.As(err).Code()).Retryable {
		t.Fatal("gateway outage must be retryable")
	}
	if f.subs.creates != 0 || f.pay.intentCreates != 0 {
		t.Fatal("nothing may be persisted when the provider call fails")
	}
}

func TestSubscribePaidPersistFailureCancelsProviderIntent(t *testing.T) {
	f := newLifecycleFixture(t)
	plan := proPlan()
	f.plans.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
		return plan, nil
	}
	f.gateway.createIntentFn = func(ctx context.Context, params payments.CreateIntentParams) (*payments.ProviderIntent, error) {
		return &payments.ProviderIntent{ID: "pi_orphan", Status: enums.PaymentIntentStatusPending}, nil
	}
	f.pay.createIntentFn = func(ctx context.Context, intent *models.PaymentIntent) error {
		return errors.New("disk full")
	}

	_, err := f.svc.Subscribe(context.Background(), uuid.New(), SubscribeInput{PlanID: plan.ID})
	if pkgerrors.As(err).Code() != pkgerrors.CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if len(f.gateway.canceled) != 1 || f.gateway.canceled[0] != "pi_orphan" {
		t.Fatalf("expected provider intent cancel, got %v", f.gateway.canceled)
	}
}

func TestSubscribePaidConcurrentPendingSlotLost(t *testing.T) {
	f := newLifecycleFixture(t)
	plan := proPlan()
	f.plans.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
		return plan, nil
	}
	// The pre-check sees no pending intent, but a concurrent request commits
	// one before this insert; the partial unique index rejects the second.
	f.gateway.createIntentFn = func(ctx context.Context, params payments.CreateIntentParams) (*payments.ProviderIntent, error) {
		return &payments.ProviderIntent{ID: "pi_loser", Status: enums.PaymentIntentStatusPending}, nil
	}
	f.pay.createIntentFn = func(ctx context.Context, intent *models.PaymentIntent) error {
		return errors.New(`duplicate key value violates unique constraint "idx_payment_intents_user_pending"`)
	}

	_, err := f.svc.Subscribe(context.Background(), uuid.New(), SubscribeInput{PlanID: plan.ID})
	if pkgerrors.As(err).Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict for lost pending slot, got %v", err)
	}
	if len(f.gateway.canceled) != 1 || f.gateway.canceled[0] != "pi_loser" {
		t.Fatalf("expected losing provider intent canceled, got %v", f.gateway.canceled)
	}
}

func TestResolveIntentTerminalShortCircuits(t *testing.T) {
	f := newLifecycleFixture(t)
	stored := &models.PaymentIntent{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		SubscriptionID: uuid.New(),
		Status:         enums.PaymentIntentStatusSucceeded,
	}
	f.pay.findIntentFn = func(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
		return stored, nil
	}

	resolved, err := f.svc.ResolveIntent(context.Background(), stored.ID, payments.Outcome{Status: enums.PaymentIntentStatusFailed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Status != enums.PaymentIntentStatusSucceeded {
		t.Fatalf("terminal intent must not change, got %s", resolved.Status)
	}
	if f.pay.intentUpdates != 0 || f.pay.historyCreates != 0 {
		t.Fatal("terminal resolution must be a no-op")
	}
}

func TestResolveIntentPendingOutcomeIsNoOp(t *testing.T) {
	f := newLifecycleFixture(t)
	stored := &models.PaymentIntent{ID: uuid.New(), Status: enums.PaymentIntentStatusPending}
	f.pay.findIntentFn = func(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
		return stored, nil
	}

	resolved, err := f.svc.ResolveIntent(context.Background(), stored.ID, payments.Outcome{Status: enums.PaymentIntentStatusPending})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Status != enums.PaymentIntentStatusPending || f.pay.intentUpdates != 0 {
		t.Fatal("pending outcome must not transition the intent")
	}
}

func TestResolveIntentUnknownIntent(t *testing.T) {
	f := newLifecycleFixture(t)
	_, err := f.svc.ResolveIntent(context.Background(), uuid.New(), payments.Outcome{Status: enums.PaymentIntentStatusSucceeded})
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveIntentSucceededActivatesAndSwaps(t *testing.T) {
	f := newLifecycleFixture(t)
	userID := uuid.New()
	target := &models.UserSubscription{ID: uuid.New(), UserID: userID, PlanID: uuid.New(), Version: 1}
	current := &models.UserSubscription{ID: uuid.New(), UserID: userID, PlanID: uuid.New(), IsActive: true, Version: 4}
	intent := &models.PaymentIntent{
		ID:             uuid.New(),
		UserID:         userID,
		SubscriptionID: target.ID,
		Amount:         decimal.NewFromInt(29),
		Currency:       "usd",
		Status:         enums.PaymentIntentStatusPending,
	}

	f.pay.findIntentFn = func(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
		return intent, nil
	}
	f.subs.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.UserSubscription, error) {
		return target, nil
	}
	f.subs.findActiveFn = func(ctx context.Context, uid uuid.UUID) (*models.UserSubscription, error) {
		return current, nil
	}
	var deactivatedID, activatedID uuid.UUID
	f.subs.deactivateFn = func(ctx context.Context, id uuid.UUID, version int, endsAt time.Time) (bool, error) {
		deactivatedID = id
		return true, nil
	}
	f.subs.activateFn = func(ctx context.Context, id uuid.UUID, version int, paymentStatus *enums.PaymentStatus) (bool, error) {
		activatedID = id
		return true, nil
	}

	resolved, err := f.svc.ResolveIntent(context.Background(), intent.ID, payments.Outcome{Status: enums.PaymentIntentStatusSucceeded})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Status != enums.PaymentIntentStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", resolved.Status)
	}
	if deactivatedID != current.ID {
		t.Fatal("previous active subscription was not deactivated")
	}
	if activatedID != target.ID {
		t.Fatal("target subscription was not activated")
	}
	if f.pay.historyCreates != 1 {
		t.Fatalf("expected one ledger row, got %d", f.pay.historyCreates)
	}
	if !f.sink.has(enums.LifecycleEventSubscriptionActivated) {
		t.Fatal("expected activation audit event")
	}
}

func TestResolveIntentActivationRace(t *testing.T) {
	f := newLifecycleFixture(t)
	userID := uuid.New()
	target := &models.UserSubscription{ID: uuid.New(), UserID: userID, Version: 1}
	intent := &models.PaymentIntent{
		ID:             uuid.New(),
		UserID:         userID,
		SubscriptionID: target.ID,
		Status:         enums.PaymentIntentStatusPending,
	}
	f.pay.findIntentFn = func(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
		return intent, nil
	}
	f.subs.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.UserSubscription, error) {
		return target, nil
	}
	f.subs.activateFn = func(ctx context.Context, id uuid.UUID, version int, paymentStatus *enums.PaymentStatus) (bool, error) {
		return false, nil
	}

	_, err := f.svc.ResolveIntent(context.Background(), intent.ID, payments.Outcome{Status: enums.PaymentIntentStatusSucceeded})
	if pkgerrors.As(err).Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict on concurrent activation, got %v", err)
	}
}

func TestResolveIntentConcurrentResolutionCollapses(t *testing.T) {
	f := newLifecycleFixture(t)
	intentID := uuid.New()
	calls := 0
	// The pre-check sees a pending intent; the in-transaction re-read sees
	// that another resolution already finished.
	f.pay.findIntentFn = func(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
		calls++
		status := enums.PaymentIntentStatusPending
		if calls > 1 {
			status = enums.PaymentIntentStatusSucceeded
		}
		return &models.PaymentIntent{ID: intentID, Status: status}, nil
	}

	resolved, err := f.svc.ResolveIntent(context.Background(), intentID, payments.Outcome{Status: enums.PaymentIntentStatusSucceeded})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Status != enums.PaymentIntentStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", resolved.Status)
	}
	if f.pay.intentUpdates != 0 || f.pay.historyCreates != 0 {
		t.Fatal("second resolution must not rewrite anything")
	}
}

func TestResolveIntentFailureMarksSubscription(t *testing.T) {
	f := newLifecycleFixture(t)
	userID := uuid.New()
	subID := uuid.New()
	intent := &models.PaymentIntent{
		ID:             uuid.New(),
		UserID:         userID,
		SubscriptionID: subID,
		Status:         enums.PaymentIntentStatusPending,
	}
	f.pay.findIntentFn = func(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
		return intent, nil
	}
	var markedStatus enums.PaymentStatus
	f.subs.setPayStatusFn = func(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) error {
		markedStatus = status
		return nil
	}

	reason := "card declined"
	resolved, err := f.svc.ResolveIntent(context.Background(), intent.ID, payments.Outcome{
		Status:        enums.PaymentIntentStatusFailed,
		FailureReason: &reason,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Status != enums.PaymentIntentStatusFailed {
		t.Fatalf("expected failed, got %s", resolved.Status)
	}
	if resolved.FailureReason == nil || *resolved.FailureReason != reason {
		t.Fatal("failure reason not recorded")
	}
	if markedStatus != enums.PaymentStatusFailed {
		t.Fatalf("subscription payment status not marked failed, got %s", markedStatus)
	}
	if f.pay.historyCreates != 1 {
		t.Fatal("failed intents must still get a ledger row")
	}
	if !f.sink.has(enums.LifecycleEventPaymentFailed) {
		t.Fatal("expected payment failed audit event")
	}
}

func TestResolveIntentDuplicateLedgerRowIgnored(t *testing.T) {
	f := newLifecycleFixture(t)
	intent := &models.PaymentIntent{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		SubscriptionID: uuid.New(),
		Status:         enums.PaymentIntentStatusPending,
	}
	f.pay.findIntentFn = func(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
		return intent, nil
	}
	f.pay.createHistoryFn = func(ctx context.Context, entry *models.PaymentHistory) error {
		return errors.New(`duplicate key value violates unique constraint "idx_payment_history_intent_id"`)
	}

	if _, err := f.svc.ResolveIntent(context.Background(), intent.ID, payments.Outcome{Status: enums.PaymentIntentStatusCanceled}); err != nil {
		t.Fatalf("duplicate ledger row must be swallowed, got %v", err)
	}
}

func TestCancelWithoutActiveSubscription(t *testing.T) {
	f := newLifecycleFixture(t)
	err := f.svc.Cancel(context.Background(), uuid.New())
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCancelDeactivatesActiveSubscription(t *testing.T) {
	f := newLifecycleFixture(t)
	userID := uuid.New()
	active := &models.UserSubscription{ID: uuid.New(), UserID: userID, IsActive: true, Version: 2}
	f.subs.findActiveFn = func(ctx context.Context, uid uuid.UUID) (*models.UserSubscription, error) {
		return active, nil
	}

	if err := f.svc.Cancel(context.Background(), userID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.subs.deactivates != 1 {
		t.Fatalf("expected one deactivate, got %d", f.subs.deactivates)
	}
	if !f.sink.has(enums.LifecycleEventSubscriptionCanceled) {
		t.Fatal("expected cancellation audit event")
	}
}

func TestCancelConcurrentChange(t *testing.T) {
	f := newLifecycleFixture(t)
	userID := uuid.New()
	f.subs.findActiveFn = func(ctx context.Context, uid uuid.UUID) (*models.UserSubscription, error) {
		return &models.UserSubscription{ID: uuid.New(), UserID: userID, IsActive: true, Version: 1}, nil
	}
	f.subs.deactivateFn = func(ctx context.Context, id uuid.UUID, version int, endsAt time.Time) (bool, error) {
		return false, nil
	}

	err := f.svc.Cancel(context.Background(), userID)
	if pkgerrors.As(err).Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLateSuccessAfterCancelIsNoOp(t *testing.T) {
	f := newLifecycleFixture(t)
	intent := &models.PaymentIntent{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		SubscriptionID: uuid.New(),
		Status:         enums.PaymentIntentStatusCanceled,
	}
	f.pay.findIntentFn = func(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
		return intent, nil
	}
	activated := false
	f.subs.activateFn = func(ctx context.Context, id uuid.UUID, version int, paymentStatus *enums.PaymentStatus) (bool, error) {
		activated = true
		return true, nil
	}

	resolved, err := f.svc.ResolveIntent(context.Background(), intent.ID, payments.Outcome{Status: enums.PaymentIntentStatusSucceeded})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Status != enums.PaymentIntentStatusCanceled {
		t.Fatalf("canceled intent must stay canceled, got %s", resolved.Status)
	}
	if activated {
		t.Fatal("a late success delivery must never activate the subscription")
	}
}
