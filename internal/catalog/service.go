package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/srt-labs/modelmarket-backend/internal/entitlements"
	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	pkgerrors "github.com/srt-labs/modelmarket-backend/pkg/errors"
	"github.com/srt-labs/modelmarket-backend/pkg/pagination"
)

type entitlementGuard interface {
	Resolve(ctx context.Context, userID uuid.UUID) (*entitlements.Entitlement, error)
	Authorize(ctx context.Context, userID uuid.UUID, check entitlements.Check) (*entitlements.Entitlement, error)
}

// Service orchestrates AI model catalog operations, gated by entitlements.
type Service struct {
	repo  Repository
	guard entitlementGuard
}

// ServiceParams groups dependencies for the catalog service.
type ServiceParams struct {
	Repo  Repository
	Guard entitlementGuard
}

// CreateModelInput captures a new model listing.
type CreateModelInput struct {
	Name          string
	Description   string
	ModelType     string
	Framework     string
	Version       string
	Metadata      map[string]any
	RepositoryURL *string
	IsPublic      bool
}

// UpdateModelInput carries the mutable listing fields.
type UpdateModelInput struct {
	Name          *string
	Description   *string
	Version       *string
	Metadata      map[string]any
	RepositoryURL *string
	IsPublic      *bool
}

// NewService builds a catalog service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("catalog repo required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("entitlement guard required")
	}
	return &Service{repo: params.Repo, guard: params.Guard}, nil
}

// Create publishes a listing, enforcing the owner's plan model limit.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, input CreateModelInput) (*models.AIModel, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "model name is required")
	}
	if strings.TrimSpace(input.ModelType) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "model_type is required")
	}
	if strings.TrimSpace(input.Framework) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "framework is required")
	}

	ent, err := s.guard.Resolve(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if ent.ModelLimit > 0 {
		count, err := s.repo.CountByOwner(ctx, ownerID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count models")
		}
		if count >= int64(ent.ModelLimit) {
			return nil, pkgerrors.New(pkgerrors.CodeQuotaExceeded, "plan model limit reached")
		}
	}

	metadata, err := marshalMetadata(input.Metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode metadata")
	}

	version := strings.TrimSpace(input.Version)
	if version == "" {
		version = "1.0.0"
	}

	model := &models.AIModel{
		OwnerID:       ownerID,
		Name:          name,
		Description:   strings.TrimSpace(input.Description),
		ModelType:     strings.TrimSpace(input.ModelType),
		Framework:     strings.TrimSpace(input.Framework),
		Version:       version,
		Metadata:      metadata,
		RepositoryURL: input.RepositoryURL,
		IsPublic:      input.IsPublic,
	}
	if err := s.repo.Create(ctx, model); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create model")
	}
	return model, nil
}

// Get returns a listing the viewer may see.
func (s *Service) Get(ctx context.Context, viewerID, modelID uuid.UUID) (*models.AIModel, error) {
	model, err := s.visibleModel(ctx, viewerID, modelID)
	if err != nil {
		return nil, err
	}
	return model, nil
}

// List returns listings visible to the viewer.
func (s *Service) List(ctx context.Context, viewerID uuid.UUID, params pagination.Params) ([]models.AIModel, *pagination.Cursor, error) {
	items, cursor, err := s.repo.List(ctx, ListModelsQuery{
		ViewerID: viewerID,
		Limit:    params.Limit,
		Cursor:   params.Cursor,
	})
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list models")
	}
	return items, cursor, nil
}

// Update applies owner edits to a listing.
func (s *Service) Update(ctx context.Context, ownerID, modelID uuid.UUID, input UpdateModelInput) (*models.AIModel, error) {
	model, err := s.ownedModel(ctx, ownerID, modelID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "model name is required")
		}
		model.Name = name
	}
	if input.Description != nil {
		model.Description = strings.TrimSpace(*input.Description)
	}
	if input.Version != nil {
		model.Version = strings.TrimSpace(*input.Version)
	}
	if input.Metadata != nil {
		metadata, err := marshalMetadata(input.Metadata)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode metadata")
		}
		model.Metadata = metadata
	}
	if input.RepositoryURL != nil {
		model.RepositoryURL = input.RepositoryURL
	}
	if input.IsPublic != nil {
		model.IsPublic = *input.IsPublic
	}

	if err := s.repo.Update(ctx, model); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update model")
	}
	return model, nil
}

// Delete removes an owned listing.
func (s *Service) Delete(ctx context.Context, ownerID, modelID uuid.UUID) error {
	model, err := s.ownedModel(ctx, ownerID, modelID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, model.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete model")
	}
	return nil
}

// Download consumes one request of the viewer's daily quota and bumps the
// listing's download counter.
func (s *Service) Download(ctx context.Context, viewerID, modelID uuid.UUID) (*models.AIModel, error) {
	model, err := s.visibleModel(ctx, viewerID, modelID)
	if err != nil {
		return nil, err
	}

	if _, err := s.guard.Authorize(ctx, viewerID, entitlements.Check{Cost: 1}); err != nil {
		return nil, err
	}

	if err := s.repo.IncrementDownloads(ctx, model.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record download")
	}
	model.DownloadCount++
	return model, nil
}

func (s *Service) ownedModel(ctx context.Context, ownerID, modelID uuid.UUID) (*models.AIModel, error) {
	if ownerID == uuid.Nil || modelID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "model id is required")
	}
	model, err := s.repo.FindByID(ctx, modelID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup model")
	}
	if model == nil || model.OwnerID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "model not found")
	}
	return model, nil
}

func (s *Service) visibleModel(ctx context.Context, viewerID, modelID uuid.UUID) (*models.AIModel, error) {
	if modelID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "model id is required")
	}
	model, err := s.repo.FindByID(ctx, modelID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup model")
	}
	if model == nil || (!model.IsPublic && model.OwnerID != viewerID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "model not found")
	}
	return model, nil
}

func marshalMetadata(metadata map[string]any) (json.RawMessage, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	return json.Marshal(metadata)
}
