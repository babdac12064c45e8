package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/srt-labs/modelmarket-backend/api/middleware"
	"github.com/srt-labs/modelmarket-backend/api/responses"
	"github.com/srt-labs/modelmarket-backend/internal/audit"
	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	pkgerrors "github.com/srt-labs/modelmarket-backend/pkg/errors"
	"github.com/srt-labs/modelmarket-backend/pkg/logger"
	"github.com/srt-labs/modelmarket-backend/pkg/pagination"
)

type auditEventResponse struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	SubscriptionID *string         `json:"subscription_id,omitempty"`
	IntentID       *string         `json:"intent_id,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

type auditEventListResponse struct {
	Events     []auditEventResponse `json:"events"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

func AuditEventList(sink *audit.Sink, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if sink == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit sink unavailable"))
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

		events, next, err := sink.ListByUser(ctx, userID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := auditEventListResponse{Events: auditEventsToResponse(events)}
		if next != nil {
			resp.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, resp)
	}
}

func auditEventsToResponse(events []models.AuditEvent) []auditEventResponse {
	result := make([]auditEventResponse, 0, len(events))
	for _, event := range events {
		item := auditEventResponse{
			ID:        event.ID.String(),
			Type:      string(event.Type),
			Metadata:  event.Metadata,
			CreatedAt: event.CreatedAt.UTC().Format(time.RFC3339),
		}
		if event.SubscriptionID != nil {
			id := event.SubscriptionID.String()
			item.SubscriptionID = &id
		}
		if event.IntentID != nil {
			id := event.IntentID.String()
			item.IntentID = &id
		}
		result = append(result, item)
	}
	return result
}
