package plans

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	"github.com/srt-labs/modelmarket-backend/pkg/enums"
	pkgerrors "github.com/srt-labs/modelmarket-backend/pkg/errors"
)

// ServiceParams groups dependencies for the plans service.
type ServiceParams struct {
	Repo Repository
}

// Service orchestrates plan catalog operations.
type Service struct {
	repo Repository
}

// CreatePlanInput captures the data for publishing a new plan.
type CreatePlanInput struct {
	Name              string
	Tier              enums.SubscriptionTier
	PriceMonthly      decimal.Decimal
	PriceYearly       decimal.Decimal
	ModelLimit        int
	DailyRequestQuota int
	SupportLevel      string
	Features          []string
}

// NewService builds a plans service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Service{repo: params.Repo}, nil
}

// ListPublic returns the plans visible to marketplace users.
func (s *Service) ListPublic(ctx context.Context) ([]models.SubscriptionPlan, error) {
	status := enums.PlanStatusActive
	plans, err := s.repo.List(ctx, ListPlansQuery{Status: &status})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list plans")
	}
	return plans, nil
}

// Get returns a single plan by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	plan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	return plan, nil
}

// Create publishes a new immutable plan. Price changes on published plans
// are done by creating a replacement plan, never by mutation.
func (s *Service) Create(ctx context.Context, input CreatePlanInput) (*models.SubscriptionPlan, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan name is required")
	}
	if !input.Tier.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan tier")
	}
	if input.PriceMonthly.IsNegative() || input.PriceYearly.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan prices must not be negative")
	}
	if input.Tier == enums.SubscriptionTierFree && !input.PriceMonthly.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "free tier plans must be zero priced")
	}

	supportLevel := strings.TrimSpace(input.SupportLevel)
	if supportLevel == "" {
		supportLevel = "community"
	}

	features := input.Features
	if features == nil {
		features = []string{}
	}

	plan := &models.SubscriptionPlan{
		Name:              name,
		Tier:              input.Tier,
		Status:            enums.PlanStatusActive,
		PriceMonthly:      input.PriceMonthly,
		PriceYearly:       input.PriceYearly,
		ModelLimit:        input.ModelLimit,
		DailyRequestQuota: input.DailyRequestQuota,
		SupportLevel:      supportLevel,
		Features:          features,
	}

	if err := s.repo.Create(ctx, plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create plan")
	}
	return plan, nil
}
