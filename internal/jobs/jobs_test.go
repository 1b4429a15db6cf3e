package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/executor"
	"github.com/matchpoint/notify-engine/internal/repository"
)

func TestRegistryResolveUnknownKind(t *testing.T) {
	r := NewRegistry()
	r.Bind(domain.JobKindRetention, func(context.Context, *domain.JobDefinition) (*domain.JobResult, error) {
		return &domain.JobResult{}, nil
	})

	if !r.Has(domain.JobKindRetention) {
		t.Fatal("bound kind not found")
	}
	if r.Has(domain.JobKind("report_generation")) {
		t.Fatal("unbound kind reported present")
	}
	if _, err := r.Resolve(domain.JobKind("report_generation")); !errors.Is(err, domain.ErrUnknownJobKind) {
		t.Fatalf("err = %v, want ErrUnknownJobKind", err)
	}
}

func TestRegistryBindTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate bind")
		}
	}()
	r := NewRegistry()
	h := executor.Handler(func(context.Context, *domain.JobDefinition) (*domain.JobResult, error) {
		return &domain.JobResult{}, nil
	})
	r.Bind(domain.JobKindDigest, h)
	r.Bind(domain.JobKindDigest, h)
}

func TestRetentionHandlerPurges(t *testing.T) {
	qr := repository.NewMockQueueRepository()
	tr := repository.NewMockTrackingRepository()
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -120)
	seed := []*domain.QueueItem{
		{ID: "old-sent", Status: domain.StatusSent, UpdatedAt: old},
		{ID: "old-opened", Status: domain.StatusSent, OpenCount: 2, UpdatedAt: old},
		{ID: "recent", Status: domain.StatusSent, UpdatedAt: time.Now().UTC()},
		{ID: "old-pending", Status: domain.StatusPending, UpdatedAt: old},
	}
	for _, item := range seed {
		if err := qr.Enqueue(ctx, item); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := tr.InsertClick(ctx, &domain.TrackingEvent{
		ID: "ev1", TrackingID: "old-opened", EventType: domain.EventClick, CreatedAt: old,
	}); err != nil {
		t.Fatalf("seed event: %v", err)
	}

	h := NewRetentionHandler(qr, tr, 90, zap.NewNop())
	res, err := h(ctx, &domain.JobDefinition{Name: "queue_retention"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.RecordsAffected != 2 {
		t.Fatalf("affected = %d, want 1 item + 1 event", res.RecordsAffected)
	}

	if _, err := qr.Get(ctx, "old-sent"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("old terminal row without engagement should be gone")
	}
	for _, id := range []string{"old-opened", "recent", "old-pending"} {
		if _, err := qr.Get(ctx, id); err != nil {
			t.Fatalf("%s should survive: %v", id, err)
		}
	}
}

func TestRetentionHandlerParameterOverride(t *testing.T) {
	qr := repository.NewMockQueueRepository()
	tr := repository.NewMockTrackingRepository()
	ctx := context.Background()

	if err := qr.Enqueue(ctx, &domain.QueueItem{
		ID: "n1", Status: domain.StatusFailed,
		UpdatedAt: time.Now().UTC().AddDate(0, 0, -10),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := NewRetentionHandler(qr, tr, 90, zap.NewNop())
	// JSON-decoded parameters arrive as float64.
	res, err := h(ctx, &domain.JobDefinition{
		Name:       "queue_retention",
		Parameters: map[string]any{"retention_days": float64(7)},
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.RecordsAffected != 1 {
		t.Fatalf("affected = %d, want 1 with 7-day override", res.RecordsAffected)
	}
}

func TestDigestHandlerReportsWindow(t *testing.T) {
	qr := repository.NewMockQueueRepository()
	ctx := context.Background()

	now := time.Now().UTC()
	for _, item := range []*domain.QueueItem{
		{ID: "a", Status: domain.StatusSent, OpenCount: 1, CreatedAt: now.Add(-time.Hour)},
		{ID: "b", Status: domain.StatusFailed, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "c", Status: domain.StatusSent, CreatedAt: now.Add(-48 * time.Hour)}, // outside window
	} {
		if err := qr.Enqueue(ctx, item); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	h := NewDigestHandler(qr, zap.NewNop())
	res, err := h(ctx, &domain.JobDefinition{Name: "daily_digest"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.RecordsProcessed != 2 {
		t.Fatalf("processed = %d, want 2 inside 24h window", res.RecordsProcessed)
	}
}

func TestStaticDefinitions(t *testing.T) {
	defs := StaticDefinitions(time.Minute, 90)
	if len(defs) != 2 {
		t.Fatalf("static jobs = %d, want 2", len(defs))
	}
	byName := map[string]*domain.JobDefinition{}
	for _, d := range defs {
		if !d.Static || !d.Enabled {
			t.Fatalf("job %s must be static and enabled", d.Name)
		}
		byName[d.Name] = d
	}
	if d := byName["notification_dispatch"]; d == nil || d.Schedule.IntervalSeconds != 60 {
		t.Fatalf("dispatch schedule = %+v", byName["notification_dispatch"])
	}
	if d := byName["queue_retention"]; d == nil || d.Schedule.CronExpression == "" {
		t.Fatalf("retention schedule = %+v", byName["queue_retention"])
	}
}
