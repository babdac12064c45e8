package plans

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	"github.com/srt-labs/modelmarket-backend/pkg/enums"
	pkgerrors "github.com/srt-labs/modelmarket-backend/pkg/errors"
)

type stubRepo struct {
	createFn   func(ctx context.Context, plan *models.SubscriptionPlan) error
	listFn     func(ctx context.Context, params ListPlansQuery) ([]models.SubscriptionPlan, error)
	findByIDFn func(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }
func (s *stubRepo) Create(ctx context.Context, plan *models.SubscriptionPlan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if s.createFn != nil {
		return s.createFn(ctx, plan)
	}
	return nil
}
func (s *stubRepo) List(ctx context.Context, params ListPlansQuery) ([]models.SubscriptionPlan, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, nil
}
func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (s *stubRepo) FindByTier(ctx context.Context, tier enums.SubscriptionTier) (*models.SubscriptionPlan, error) {
	return nil, nil
}

func newPlansService(t *testing.T, repo *stubRepo) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Repo: repo})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func TestListPublicFiltersToActive(t *testing.T) {
	var captured ListPlansQuery
	repo := &stubRepo{
		listFn: func(ctx context.Context, params ListPlansQuery) ([]models.SubscriptionPlan, error) {
			captured = params
			return []models.SubscriptionPlan{{ID: uuid.New()}}, nil
		},
	}
	svc := newPlansService(t, repo)

	plans, err := svc.ListPublic(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("expected 1 plan, got %d", len(plans))
	}
	if captured.Status == nil || *captured.Status != enums.PlanStatusActive {
		t.Fatal("public listing must filter to active plans")
	}
}

func TestGetUnknownPlan(t *testing.T) {
	svc := newPlansService(t, &stubRepo{})
	_, err := svc.Get(context.Background(), uuid.New())
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	svc := newPlansService(t, &stubRepo{})
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreatePlanInput{Tier: enums.SubscriptionTierPro}); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for missing name, got %v", err)
	}
	if _, err := svc.Create(ctx, CreatePlanInput{Name: "X", Tier: "platinum"}); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for bad tier, got %v", err)
	}
	if _, err := svc.Create(ctx, CreatePlanInput{
		Name:         "X",
		Tier:         enums.SubscriptionTierPro,
		PriceMonthly: decimal.NewFromInt(-1),
	}); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for negative price, got %v", err)
	}
	if _, err := svc.Create(ctx, CreatePlanInput{
		Name:         "Free Plus",
		Tier:         enums.SubscriptionTierFree,
		PriceMonthly: decimal.NewFromInt(5),
	}); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for priced free tier, got %v", err)
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	svc := newPlansService(t, &stubRepo{})
	plan, err := svc.Create(context.Background(), CreatePlanInput{
		Name:         "  Pro  ",
		Tier:         enums.SubscriptionTierPro,
		PriceMonthly: decimal.NewFromInt(29),
		PriceYearly:  decimal.NewFromInt(290),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Name != "Pro" {
		t.Fatalf("expected trimmed name, got %q", plan.Name)
	}
	if plan.Status != enums.PlanStatusActive {
		t.Fatalf("expected active status, got %s", plan.Status)
	}
	if plan.SupportLevel != "community" {
		t.Fatalf("expected default support level, got %q", plan.SupportLevel)
	}
	if plan.Features == nil {
		t.Fatal("features must default to an empty array")
	}
}
