package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/srt-labs/modelmarket-backend/internal/audit"
	"github.com/srt-labs/modelmarket-backend/pkg/config"
	"github.com/srt-labs/modelmarket-backend/pkg/db/models"
	"github.com/srt-labs/modelmarket-backend/pkg/enums"
	"github.com/srt-labs/modelmarket-backend/pkg/logger"
)

type stubIntentReader struct {
	intents []models.PaymentIntent
	err     error

	gotCutoff time.Time
}

func (s *stubIntentReader) ListStalePendingIntents(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentIntent, error) {
	s.gotCutoff = olderThan
	return s.intents, s.err
}

type stubPoller struct {
	pollFn func(ctx context.Context, userID, intentID uuid.UUID) (*models.PaymentIntent, error)

	calls int
}

func (s *stubPoller) PollStatus(ctx context.Context, userID, intentID uuid.UUID) (*models.PaymentIntent, error) {
	s.calls++
	if s.pollFn != nil {
		return s.pollFn(ctx, userID, intentID)
	}
	return &models.PaymentIntent{ID: intentID, UserID: userID, Status: enums.PaymentIntentStatusPending}, nil
}

type stubAuditRecorder struct {
	entries []audit.Entry
	err     error
}

func (s *stubAuditRecorder) Record(ctx context.Context, entry audit.Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func newStaleJob(t *testing.T, reader *stubIntentReader, poller *stubPoller, recorder *stubAuditRecorder) Job {
	t.Helper()
	job, err := NewStaleIntentJob(StaleIntentJobParams{
		Logger:         logger.New(logger.Options{ServiceName: "test"}),
		Intents:        reader,
		Poller:         poller,
		Audit:          recorder,
		PaymentsConfig: config.PaymentsConfig{StaleIntentAfter: 24 * time.Hour},
	})
	if err != nil {
		t.Fatalf("setup job: %v", err)
	}
	return job
}

func pendingIntent(age time.Duration) models.PaymentIntent {
	return models.PaymentIntent{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		SubscriptionID: uuid.New(),
		Status:         enums.PaymentIntentStatusPending,
		CreatedAt:      time.Now().UTC().Add(-age),
	}
}

func TestStaleIntentSweepReconcilesTerminal(t *testing.T) {
	intent := pendingIntent(36 * time.Hour)
	reader := &stubIntentReader{intents: []models.PaymentIntent{intent}}
	poller := &stubPoller{
		pollFn: func(ctx context.Context, userID, intentID uuid.UUID) (*models.PaymentIntent, error) {
			return &models.PaymentIntent{ID: intentID, UserID: userID, Status: enums.PaymentIntentStatusSucceeded}, nil
		},
	}
	recorder := &stubAuditRecorder{}
	job := newStaleJob(t, reader, poller, recorder)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if poller.calls != 1 {
		t.Fatalf("expected one reconciliation poll, got %d", poller.calls)
	}
	if len(recorder.entries) != 0 {
		t.Fatal("reconciled intents must not be surfaced")
	}
}

func TestStaleIntentSweepSurfacesPending(t *testing.T) {
	intent := pendingIntent(48 * time.Hour)
	reader := &stubIntentReader{intents: []models.PaymentIntent{intent}}
	recorder := &stubAuditRecorder{}
	job := newStaleJob(t, reader, &stubPoller{}, recorder)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recorder.entries) != 1 {
		t.Fatalf("expected one surfaced intent, got %d", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.Type != enums.LifecycleEventIntentStale {
		t.Fatalf("expected stale event, got %s", entry.Type)
	}
	if entry.IntentID == nil || *entry.IntentID != intent.ID {
		t.Fatal("surfaced entry not linked to the intent")
	}
	if age, ok := entry.Metadata["age_hours"].(int); !ok || age < 47 {
		t.Fatalf("expected age metadata, got %v", entry.Metadata["age_hours"])
	}
}

func TestStaleIntentSweepProviderUnreachable(t *testing.T) {
	intent := pendingIntent(30 * time.Hour)
	reader := &stubIntentReader{intents: []models.PaymentIntent{intent}}
	poller := &stubPoller{
		pollFn: func(ctx context.Context, userID, intentID uuid.UUID) (*models.PaymentIntent, error) {
			return nil, errors.New("provider unavailable")
		},
	}
	recorder := &stubAuditRecorder{}
	job := newStaleJob(t, reader, poller, recorder)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected the poll failure to be reported")
	}
	// The intent stays pending and is still surfaced for operators.
	if len(recorder.entries) != 1 {
		t.Fatalf("expected surfaced intent despite poll failure, got %d", len(recorder.entries))
	}
}

func TestStaleIntentSweepUsesConfiguredWindow(t *testing.T) {
	reader := &stubIntentReader{}
	job := newStaleJob(t, reader, &stubPoller{}, &stubAuditRecorder{})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Now().UTC().Add(-24 * time.Hour)
	if diff := reader.gotCutoff.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("cutoff %s not near expected %s", reader.gotCutoff, want)
	}
}
