package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/srt-labs/modelmarket-backend/internal/audit"
	"github.com/srt-labs/modelmarket-backend/pkg/config"
	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	"github.com/srt-labs/modelmarket-backend/pkg/enums"
	"github.com/srt-labs/modelmarket-backend/pkg/logger"
)

const staleIntentBatchSize = 250

type staleIntentReader interface {
	ListStalePendingIntents(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentIntent, error)
}

type intentPoller interface {
	PollStatus(ctx context.Context, userID, intentID uuid.UUID) (*models.PaymentIntent, error)
}

type auditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// StaleIntentJobParams configure the stale intent sweep.
type StaleIntentJobParams struct {
	Logger         *logger.Logger
	Intents        staleIntentReader
	Poller         intentPoller
	Audit          auditRecorder
	PaymentsConfig config.PaymentsConfig
}

// NewStaleIntentJob builds the cron job that reconciles and surfaces
// pending intents older than the configured window. Intents that stay
// pending after reconciliation are reported for operator review, never
// auto-expired.
func NewStaleIntentJob(params StaleIntentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("intent reader required")
	}
	if params.Poller == nil {
		return nil, fmt.Errorf("intent poller required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	window := params.PaymentsConfig.StaleIntentAfter
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &staleIntentJob{
		logg:    params.Logger,
		intents: params.Intents,
		poller:  params.Poller,
		audit:   params.Audit,
		window:  window,
		now:     time.Now,
	}, nil
}

type staleIntentJob struct {
	logg    *logger.Logger
	intents staleIntentReader
	poller  intentPoller
	audit   auditRecorder
	window  time.Duration
	now     func() time.Time
}

func (j *staleIntentJob) Name() string { return "stale-intent-sweep" }

func (j *staleIntentJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	stale, err := j.intents.ListStalePendingIntents(ctx, cutoff, staleIntentBatchSize)
	if err != nil {
		return fmt.Errorf("query stale intents: %w", err)
	}

	var errs []error
	reconciled, surfaced := 0, 0
	for _, intent := range stale {
		resolved, err := j.poller.PollStatus(ctx, intent.UserID, intent.ID)
		if err != nil {
			// Provider unreachable; the intent stays pending and gets
			// surfaced below on the next cycle.
			errs = append(errs, fmt.Errorf("reconcile intent %s: %w", intent.ID, err))
			resolved = &intent
		}
		if resolved.Status.IsTerminal() {
			reconciled++
			continue
		}

		age := j.now().UTC().Sub(intent.CreatedAt)
		if err := j.audit.Record(ctx, audit.Entry{
			Type:           enums.LifecycleEventIntentStale,
			UserID:         intent.UserID,
			SubscriptionID: &intent.SubscriptionID,
			IntentID:       &intent.ID,
			Metadata:       map[string]any{"age_hours": int(age.Hours())},
		}); err != nil {
			errs = append(errs, fmt.Errorf("record stale intent %s: %w", intent.ID, err))
			continue
		}
		surfaced++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked":    len(stale),
		"reconciled": reconciled,
		"surfaced":   surfaced,
	})
	j.logg.Info(logCtx, "stale intent sweep complete")
	return multierr.Combine(errs...)
}
