package entitlements

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/srt-labs/modelmarket-backend/pkg/config"
	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	"github.com/srt-labs/modelmarket-backend/pkg/enums"
	pkgerrors "github.com/srt-labs/modelmarket-backend/pkg/errors"
)

type subscriptionRepository interface {
	FindActiveForUser(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error)
}

type planRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
	FindByTier(ctx context.Context, tier enums.SubscriptionTier) (*models.SubscriptionPlan, error)
}

type quotaCounter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	QuotaKey(userID, window string) string
}

// Check describes what an operation demands of the caller's entitlement.
type Check struct {
	MinTier enums.SubscriptionTier
	// Cost counts against the daily request quota. Zero-cost checks only
	// gate on tier.
	Cost int64
}

// Entitlement is the resolved view the guard hands back to callers.
type Entitlement struct {
	Tier              enums.SubscriptionTier
	PlanID            uuid.UUID
	ModelLimit        int
	DailyRequestQuota int
	Remaining         int64
}

// Guard resolves a user's effective entitlement and enforces tier and quota
// checks. Users without an active subscription are treated as free tier.
type Guard struct {
	subs        subscriptionRepository
	plans       planRepository
	quota       quotaCounter
	quotaWindow time.Duration
}

// GuardParams groups dependencies for the entitlement guard.
type GuardParams struct {
	SubscriptionRepo subscriptionRepository
	PlanRepo         planRepository
	QuotaCounter     quotaCounter
	Config           config.EntitlementsConfig
}

// NewGuard builds an entitlement guard.
func NewGuard(params GuardParams) (*Guard, error) {
	if params.SubscriptionRepo == nil {
		return nil, fmt.Errorf("subscription repo required")
	}
	if params.PlanRepo == nil {
		return nil, fmt.Errorf("plan repo required")
	}
	if params.QuotaCounter == nil {
		return nil, fmt.Errorf("quota counter required")
	}
	window := params.Config.QuotaWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Guard{
		subs:        params.SubscriptionRepo,
		plans:       params.PlanRepo,
		quota:       params.QuotaCounter,
		quotaWindow: window,
	}, nil
}

// Resolve returns the user's effective entitlement without consuming quota.
func (g *Guard) Resolve(ctx context.Context, userID uuid.UUID) (*Entitlement, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	plan, err := g.effectivePlan(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Entitlement{
		Tier:              plan.Tier,
		PlanID:            plan.ID,
		ModelLimit:        plan.ModelLimit,
		DailyRequestQuota: plan.DailyRequestQuota,
	}, nil
}

// Authorize enforces the check and, when it carries a cost, consumes quota.
func (g *Guard) Authorize(ctx context.Context, userID uuid.UUID, check Check) (*Entitlement, error) {
	ent, err := g.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	if check.MinTier != "" && !ent.Tier.AtLeast(check.MinTier) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden,
			fmt.Sprintf("requires %s tier or above", check.MinTier))
	}

	if check.Cost > 0 && ent.DailyRequestQuota > 0 {
		key := g.quota.QuotaKey(userID.String(), g.windowStamp())
		count, err := g.quota.IncrWithTTL(ctx, key, g.quotaWindow)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume quota")
		}
		if count > int64(ent.DailyRequestQuota) {
			return nil, pkgerrors.New(pkgerrors.CodeQuotaExceeded, "daily request quota exceeded")
		}
		ent.Remaining = int64(ent.DailyRequestQuota) - count
	}

	return ent, nil
}

// effectivePlan maps the active subscription to its plan, falling back to
// the free tier plan when the user has no active subscription.
func (g *Guard) effectivePlan(ctx context.Context, userID uuid.UUID) (*models.SubscriptionPlan, error) {
	sub, err := g.subs.FindActiveForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup active subscription")
	}

	if sub != nil {
		plan, err := g.plans.FindByID(ctx, sub.PlanID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup plan")
		}
		if plan != nil {
			return plan, nil
		}
	}

	free, err := g.plans.FindByTier(ctx, enums.SubscriptionTierFree)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup free plan")
	}
	if free == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "free tier plan not configured")
	}
	return free, nil
}

// windowStamp buckets quota counters by window start so counters reset
// naturally at the boundary.
func (g *Guard) windowStamp() string {
	now := time.Now().UTC()
	bucket := now.Truncate(g.quotaWindow)
	return bucket.Format("20060102T150405")
}
