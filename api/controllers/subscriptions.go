package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/srt-labs/modelmarket-backend/api/middleware"
	"github.com/srt-labs/modelmarket-backend/api/responses"
	"github.com/srt-labs/modelmarket-backend/api/validators"
	"github.com/srt-labs/modelmarket-backend/internal/subscriptions"
	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	"github.com/srt-labs/modelmarket-backend/pkg/enums"
	pkgerrors "github.com/srt-labs/modelmarket-backend/pkg/errors"
	"github.com/srt-labs/modelmarket-backend/pkg/logger"
)

type subscribeRequest struct {
	PlanID   string `json:"plan_id" validate:"required,uuid"`
	Interval string `json:"interval" validate:"required"`
}

type subscriptionResponse struct {
	ID            string  `json:"id"`
	PlanID        string  `json:"plan_id"`
	StartsAt      string  `json:"starts_at"`
	EndsAt        *string `json:"ends_at,omitempty"`
	IsActive      bool    `json:"is_active"`
	PaymentStatus *string `json:"payment_status,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

type subscribeResponse struct {
	Subscription    *subscriptionResponse  `json:"subscription"`
	Intent          *paymentIntentResponse `json:"intent,omitempty"`
	RequiresPayment bool                   `json:"requires_payment"`
}

func SubscriptionCreate(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload subscribeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		planID, err := uuid.Parse(strings.TrimSpace(payload.PlanID))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan id"))
			return
		}
		interval, err := enums.ParseBillingInterval(strings.TrimSpace(payload.Interval))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing interval"))
			return
		}

		result, err := svc.Subscribe(ctx, userID, subscriptions.SubscribeInput{
			PlanID:   planID,
			Interval: interval,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := subscribeResponse{
			Subscription:    subscriptionToResponse(result.Subscription),
			RequiresPayment: result.RequiresPayment,
		}
		if result.Intent != nil {
			intent := intentToResponse(result.Intent, true)
			resp.Intent = &intent
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

func SubscriptionCancel(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Cancel(ctx, userID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "canceled"})
	}
}

func SubscriptionFetch(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := svc.GetActive(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"subscription": subscriptionToResponse(sub)})
	}
}

func subscriptionToResponse(sub *models.UserSubscription) *subscriptionResponse {
	if sub == nil {
		return nil
	}

	resp := &subscriptionResponse{
		ID:        sub.ID.String(),
		PlanID:    sub.PlanID.String(),
		StartsAt:  sub.StartsAt.UTC().Format(time.RFC3339),
		IsActive:  sub.IsActive,
		CreatedAt: sub.CreatedAt.UTC().Format(time.RFC3339),
	}
	if sub.EndsAt != nil {
		endsAt := sub.EndsAt.UTC().Format(time.RFC3339)
		resp.EndsAt = &endsAt
	}
	if sub.PaymentStatus != nil {
		status := string(*sub.PaymentStatus)
		resp.PaymentStatus = &status
	}
	return resp
}
