package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	"github.com/srt-labs/modelmarket-backend/pkg/enums"
	"github.com/srt-labs/modelmarket-backend/pkg/logger"
	"github.com/srt-labs/modelmarket-backend/pkg/pagination"
)

// Entry is a single lifecycle transition to record.
type Entry struct {
	Type           enums.LifecycleEventType
	UserID         uuid.UUID
	SubscriptionID *uuid.UUID
	IntentID       *uuid.UUID
	Metadata       map[string]any
}

// EventPublisher fans a recorded entry out to external consumers.
type EventPublisher interface {
	PublishLifecycle(ctx context.Context, entry Entry) error
}

// Sink records lifecycle events. Persistence is the source of truth; the
// optional publisher is best effort and never fails the caller.
type Sink struct {
	repo      Repository
	publisher EventPublisher
	logg      *logger.Logger
}

// SinkParams groups dependencies for the audit sink.
type SinkParams struct {
	Repo      Repository
	Publisher EventPublisher
	Logger    *logger.Logger
}

// NewSink builds an audit sink.
func NewSink(params SinkParams) (*Sink, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Sink{
		repo:      params.Repo,
		publisher: params.Publisher,
		logg:      params.Logger,
	}, nil
}

// Record persists the entry and fans it out. Publish failures are logged,
// never surfaced: losing a notification must not fail a payment transition.
func (s *Sink) Record(ctx context.Context, entry Entry) error {
	if !entry.Type.IsValid() {
		return errors.New("invalid lifecycle event type")
	}

	var metadata json.RawMessage
	if len(entry.Metadata) > 0 {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
		metadata = b
	}

	event := &models.AuditEvent{
		Type:           entry.Type,
		UserID:         entry.UserID,
		SubscriptionID: entry.SubscriptionID,
		IntentID:       entry.IntentID,
		Metadata:       metadata,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishLifecycle(ctx, entry); err != nil && s.logg != nil {
			s.logg.Warn(ctx, "publish lifecycle event: "+err.Error())
		}
	}
	return nil
}

// ListByUser exposes the recorded trail for support tooling.
func (s *Sink) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.AuditEvent, *pagination.Cursor, error) {
	return s.repo.ListByUser(ctx, userID, params)
}
