package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/srt-labs/modelmarket-backend/api/responses"
	"github.com/srt-labs/modelmarket-backend/api/validators"
	"github.com/srt-labs/modelmarket-backend/internal/plans"
	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	"github.com/srt-labs/modelmarket-backend/pkg/enums"
	pkgerrors "github.com/srt-labs/modelmarket-backend/pkg/errors"
	"github.com/srt-labs/modelmarket-backend/pkg/logger"
)

type planResponse struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Tier              string   `json:"tier"`
	Status            string   `json:"status"`
	PriceMonthly      string   `json:"price_monthly"`
	PriceYearly       string   `json:"price_yearly"`
	ModelLimit        int      `json:"model_limit"`
	DailyRequestQuota int      `json:"daily_request_quota"`
	SupportLevel      string   `json:"support_level"`
	Features          []string `json:"features"`
	CreatedAt         string   `json:"created_at"`
}

type planListResponse struct {
	Plans []planResponse `json:"plans"`
}

type planCreateRequest struct {
	Name              string   `json:"name" validate:"required,min=1,max=120"`
	Tier              string   `json:"tier" validate:"required"`
	PriceMonthlyCents *int64   `json:"price_monthly_cents" validate:"required"`
	PriceYearlyCents  *int64   `json:"price_yearly_cents" validate:"required"`
	ModelLimit        int      `json:"model_limit" validate:"min=0"`
	DailyRequestQuota int      `json:"daily_request_quota" validate:"min=0"`
	SupportLevel      string   `json:"support_level"`
	Features          []string `json:"features"`
}

func PlanList(svc *plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		listed, err := svc.ListPublic(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, planListResponse{Plans: plansToResponse(listed)})
	}
}

func PlanDetail(svc *plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		planID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "planId")))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan id"))
			return
		}

		plan, err := svc.Get(ctx, planID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, planToResponse(plan))
	}
}

func AdminPlanCreate(svc *plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		var payload planCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		tier, err := enums.ParseSubscriptionTier(strings.TrimSpace(payload.Tier))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tier"))
			return
		}
		if *payload.PriceMonthlyCents < 0 || *payload.PriceYearlyCents < 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "plan prices must not be negative"))
			return
		}

		plan, err := svc.Create(ctx, plans.CreatePlanInput{
			Name:              payload.Name,
			Tier:              tier,
			PriceMonthly:      decimal.NewFromInt(*payload.PriceMonthlyCents).Shift(-2),
			PriceYearly:       decimal.NewFromInt(*payload.PriceYearlyCents).Shift(-2),
			ModelLimit:        payload.ModelLimit,
			DailyRequestQuota: payload.DailyRequestQuota,
			SupportLevel:      payload.SupportLevel,
			Features:          payload.Features,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, planToResponse(plan))
	}
}

func plansToResponse(listed []models.SubscriptionPlan) []planResponse {
	result := make([]planResponse, 0, len(listed))
	for i := range listed {
		result = append(result, planToResponse(&listed[i]))
	}
	return result
}

func planToResponse(plan *models.SubscriptionPlan) planResponse {
	features := make([]string, len(plan.Features))
	copy(features, plan.Features)

	return planResponse{
		ID:                plan.ID.String(),
		Name:              plan.Name,
		Tier:              string(plan.Tier),
		Status:            string(plan.Status),
		PriceMonthly:      plan.PriceMonthly.StringFixed(2),
		PriceYearly:       plan.PriceYearly.StringFixed(2),
		ModelLimit:        plan.ModelLimit,
		DailyRequestQuota: plan.DailyRequestQuota,
		SupportLevel:      plan.SupportLevel,
		Features:          features,
		CreatedAt:         plan.CreatedAt.UTC().Format(time.RFC3339),
	}
}
