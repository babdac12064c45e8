package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/srt-labs/modelmarket-backend/api/middleware"
	"github.com/srt-labs/modelmarket-backend/api/responses"
	"github.com/srt-labs/modelmarket-backend/api/validators"
	"github.com/srt-labs/modelmarket-backend/internal/payments"
	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	pkgerrors "github.com/srt-labs/modelmarket-backend/pkg/errors"
	"github.com/srt-labs/modelmarket-backend/pkg/logger"
	"github.com/srt-labs/modelmarket-backend/pkg/pagination"
)

type createIntentRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required,uuid"`
}

type attachMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required,min=1"`
	MakeDefault     bool   `json:"make_default"`
}

type paymentIntentResponse struct {
	ID             string  `json:"id"`
	SubscriptionID string  `json:"subscription_id"`
	Amount         string  `json:"amount"`
	Currency       string  `json:"currency"`
	Status         string  `json:"status"`
	ClientSecret   string  `json:"client_secret,omitempty"`
	FailureReason  *string `json:"failure_reason,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

type paymentHistoryResponse struct {
	ID              string `json:"id"`
	SubscriptionID  string `json:"subscription_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

type paymentHistoryListResponse struct {
	Payments   []paymentHistoryResponse `json:"payments"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

type paymentMethodResponse struct {
	ID           string  `json:"id"`
	CardBrand    *string `json:"card_brand,omitempty"`
	CardLast4    *string `json:"card_last4,omitempty"`
	CardExpMonth *int    `json:"card_exp_month,omitempty"`
	CardExpYear  *int    `json:"card_exp_year,omitempty"`
	IsDefault    bool    `json:"is_default"`
	CreatedAt    string  `json:"created_at"`
}

func PaymentIntentCreate(svc *payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload createIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		subscriptionID, err := uuid.Parse(strings.TrimSpace(payload.SubscriptionID))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription id"))
			return
		}

		intent, err := svc.CreateIntent(ctx, userID, subscriptionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, intentToResponse(intent, true))
	}
}

func PaymentIntentStatus(svc *payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		intentID, err := parseIntentID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		intent, err := svc.PollStatus(ctx, userID, intentID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, intentToResponse(intent, false))
	}
}

func PaymentIntentCancel(svc *payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		intentID, err := parseIntentID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		intent, err := svc.CancelIntent(ctx, userID, intentID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, intentToResponse(intent, false))
	}
}

func PaymentHistoryList(svc *payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params, err := parseListParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rows, next, err := svc.ListHistory(ctx, userID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := paymentHistoryListResponse{Payments: historyToResponse(rows)}
		if next != nil {
			resp.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, resp)
	}
}

func PaymentMethodAttach(svc *payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload attachMethodRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		method, err := svc.AttachPaymentMethod(ctx, userID, strings.TrimSpace(payload.PaymentMethodID), payload.MakeDefault)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, methodToResponse(method))
	}
}

func PaymentMethodList(svc *payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		methods, err := svc.ListPaymentMethods(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result := make([]paymentMethodResponse, 0, len(methods))
		for i := range methods {
			result = append(result, methodToResponse(&methods[i]))
		}
		responses.WriteSuccess(w, map[string]any{"payment_methods": result})
	}
}

func parseIntentID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "intentId")))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid intent id")
	}
	return id, nil
}

func parseListParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

// intentToResponse hides the client secret unless the intent was just
// created for this caller.
func intentToResponse(intent *models.PaymentIntent, includeSecret bool) paymentIntentResponse {
	resp := paymentIntentResponse{
		ID:             intent.ID.String(),
		SubscriptionID: intent.SubscriptionID.String(),
		Amount:         intent.Amount.StringFixed(2),
		Currency:       intent.Currency,
		Status:         string(intent.Status),
		FailureReason:  intent.FailureReason,
		CreatedAt:      intent.CreatedAt.UTC().Format(time.RFC3339),
	}
	if includeSecret {
		resp.ClientSecret = intent.ClientSecret
	}
	return resp
}

func historyToResponse(rows []models.PaymentHistory) []paymentHistoryResponse {
	result := make([]paymentHistoryResponse, 0, len(rows))
	for _, row := range rows {
		result = append(result, paymentHistoryResponse{
			ID:              row.ID.String(),
			SubscriptionID:  row.SubscriptionID.String(),
			PaymentIntentID: row.PaymentIntentID.String(),
			Amount:          row.Amount.StringFixed(2),
			Currency:        row.Currency,
			Status:          row.Status,
			CreatedAt:       row.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return result
}

func methodToResponse(method *models.PaymentMethod) paymentMethodResponse {
	return paymentMethodResponse{
		ID:           method.ID.String(),
		CardBrand:    method.CardBrand,
		CardLast4:    method.CardLast4,
		CardExpMonth: method.CardExpMonth,
		CardExpYear:  method.CardExpYear,
		IsDefault:    method.IsDefault,
		CreatedAt:    method.CreatedAt.UTC().Format(time.RFC3339),
	}
}
