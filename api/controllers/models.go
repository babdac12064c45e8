package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/srt-labs/modelmarket-backend/api/middleware"
	"github.com/srt-labs/modelmarket-backend/api/responses"
	"github.com/srt-labs/modelmarket-backend/api/validators"
	"github.com/srt-labs/modelmarket-backend/internal/catalog"
	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	pkgerrors "github.com/srt-labs/modelmarket-backend/pkg/errors"
	"github.com/srt-labs/modelmarket-backend/pkg/logger"
	"github.com/srt-labs/modelmarket-backend/pkg/pagination"
)

type modelCreateRequest struct {
	Name          string         `json:"name" validate:"required,min=1,max=200"`
	Description   string         `json:"description" validate:"max=4000"`
	ModelType     string         `json:"model_type" validate:"required,min=1"`
	Framework     string         `json:"framework" validate:"required,min=1"`
	Version       string         `json:"version" validate:"required,min=1"`
	Metadata      map[string]any `json:"metadata"`
	RepositoryURL *string        `json:"repository_url"`
	IsPublic      bool           `json:"is_public"`
}

type modelUpdateRequest struct {
	Name          *string        `json:"name"`
	Description   *string        `json:"description"`
	Version       *string        `json:"version"`
	Metadata      map[string]any `json:"metadata"`
	RepositoryURL *string        `json:"repository_url"`
	IsPublic      *bool          `json:"is_public"`
}

type modelResponse struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	ModelType     string          `json:"model_type"`
	Framework     string          `json:"framework"`
	Version       string          `json:"version"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	RepositoryURL *string         `json:"repository_url,omitempty"`
	DownloadCount int             `json:"download_count"`
	IsPublic      bool            `json:"is_public"`
	CreatedAt     string          `json:"created_at"`
}

type modelListResponse struct {
	Models     []modelResponse `json:"models"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func ModelCreate(svc *catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload modelCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		model, err := svc.Create(ctx, userID, catalog.CreateModelInput{
			Name:          payload.Name,
			Description:   payload.Description,
			ModelType:     payload.ModelType,
			Framework:     payload.Framework,
			Version:       payload.Version,
			Metadata:      payload.Metadata,
			RepositoryURL: payload.RepositoryURL,
			IsPublic:      payload.IsPublic,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, modelToResponse(model))
	}
}

func ModelList(svc *catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
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

		listed, next, err := svc.List(ctx, userID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := modelListResponse{Models: modelsToResponse(listed)}
		if next != nil {
			resp.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, resp)
	}
}

func ModelDetail(svc *catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		modelID, err := parseModelID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		model, err := svc.Get(ctx, userID, modelID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, modelToResponse(model))
	}
}

func ModelUpdate(svc *catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		modelID, err := parseModelID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload modelUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		model, err := svc.Update(ctx, userID, modelID, catalog.UpdateModelInput{
			Name:          payload.Name,
			Description:   payload.Description,
			Version:       payload.Version,
			Metadata:      payload.Metadata,
			RepositoryURL: payload.RepositoryURL,
			IsPublic:      payload.IsPublic,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, modelToResponse(model))
	}
}

func ModelDelete(svc *catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		modelID, err := parseModelID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Delete(ctx, userID, modelID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

func ModelDownload(svc *catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		modelID, err := parseModelID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		model, err := svc.Download(ctx, userID, modelID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, modelToResponse(model))
	}
}

func parseModelID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "modelId")))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid model id")
	}
	return id, nil
}

func modelsToResponse(listed []models.AIModel) []modelResponse {
	result := make([]modelResponse, 0, len(listed))
	for i := range listed {
		result = append(result, modelToResponse(&listed[i]))
	}
	return result
}

func modelToResponse(model *models.AIModel) modelResponse {
	return modelResponse{
		ID:            model.ID.String(),
		OwnerID:       model.OwnerID.String(),
		Name:          model.Name,
		Description:   model.Description,
		ModelType:     model.ModelType,
		Framework:     model.Framework,
		Version:       model.Version,
		Metadata:      model.Metadata,
		RepositoryURL: model.RepositoryURL,
		DownloadCount: model.DownloadCount,
		IsPublic:      model.IsPublic,
		CreatedAt:     model.CreatedAt.UTC().Format(time.RFC3339),
	}
}
