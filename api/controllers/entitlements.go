package controllers

import (
	"net/http"

	"github.com/srt-labs/modelmarket-backend/api/middleware"
	"github.com/srt-labs/modelmarket-backend/api/responses"
	"github.com/srt-labs/modelmarket-backend/internal/entitlements"
	pkgerrors "github.com/srt-labs/modelmarket-backend/pkg/errors"
	"github.com/srt-labs/modelmarket-backend/pkg/logger"
)

type entitlementResponse struct {
	Tier              string `json:"tier"`
	PlanID            string `json:"plan_id"`
	ModelLimit        int    `json:"model_limit"`
	DailyRequestQuota int    `json:"daily_request_quota"`
	Remaining         int64  `json:"remaining"`
}

// EntitlementFetch reports the caller's effective tier and quota headroom.
func EntitlementFetch(guard *entitlements.Guard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement guard unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ent, err := guard.Resolve(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, entitlementResponse{
			Tier:              string(ent.Tier),
			PlanID:            ent.PlanID.String(),
			ModelLimit:        ent.ModelLimit,
			DailyRequestQuota: ent.DailyRequestQuota,
			Remaining:         ent.Remaining,
		})
	}
}
