package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/matchpoint/notify-engine/internal/channel"
	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/metrics"
	"github.com/matchpoint/notify-engine/internal/queue"
	"github.com/matchpoint/notify-engine/internal/ratelimiter"
	"github.com/matchpoint/notify-engine/internal/repository"
)

type fakeAdapter struct {
	ch     domain.Channel
	result channel.Result

	mu      sync.Mutex
	calls   int
	lastMsg channel.Message
}

func (f *fakeAdapter) Channel() domain.Channel { return f.ch }

func (f *fakeAdapter) Send(_ context.Context, _ string, msg channel.Message) channel.Result {
	f.mu.Lock()
	f.calls++
	f.lastMsg = msg
	f.mu.Unlock()
	return f.result
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	dispatcher *Dispatcher
	queue      *repository.MockQueueRepository
	templates  *repository.MockTemplateRepository
	email      *fakeAdapter
	sms        *fakeAdapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		queue:     repository.NewMockQueueRepository(),
		templates: repository.NewMockTemplateRepository(),
		email:     &fakeAdapter{ch: domain.ChannelEmail, result: channel.Result{Success: true, ProviderUsed: "primary"}},
		sms:       &fakeAdapter{ch: domain.ChannelSMS, result: channel.Result{Success: true, ProviderUsed: "primary"}},
	}
	f.dispatcher = New(
		Config{BatchSize: 100, Workers: 4, MaxAttempts: 3, TrackingBaseURL: "https://notify.example.com"},
		f.queue,
		f.templates,
		[]channel.Adapter{f.email, f.sms},
		ratelimiter.New(1000),
		queue.NewBuffer(),
		metrics.New(prometheus.NewRegistry()),
		zap.NewNop(),
	)
	return f
}

func (f *fixture) seedTemplate(t *testing.T, ch domain.Channel) {
	t.Helper()
	err := f.templates.Upsert(context.Background(), &domain.Template{
		Trigger: "new_match",
		Channel: ch,
		Subject: "You have a new match, {match.first_name}!",
		Body:    "{match.first_name} liked your profile.",
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("seed template: %v", err)
	}
}

func (f *fixture) seedItem(t *testing.T, id string, channels ...domain.Channel) {
	t.Helper()
	err := f.queue.Enqueue(context.Background(), &domain.QueueItem{
		ID:        id,
		Recipient: "user-1",
		Trigger:   "new_match",
		Priority:  domain.PriorityHigh,
		Channels:  channels,
		TemplateData: map[string]any{
			"match": map[string]any{"first_name": "Ayse"},
		},
		Status:       domain.StatusPending,
		ScheduledFor: time.Now().UTC().Add(-time.Minute),
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
}

func (f *fixture) item(t *testing.T, id string) *domain.QueueItem {
	t.Helper()
	item, err := f.queue.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	return item
}

func TestRunDeliversAcrossChannels(t *testing.T) {
	f := newFixture(t)
	f.seedTemplate(t, domain.ChannelEmail)
	f.seedTemplate(t, domain.ChannelSMS)
	f.seedItem(t, "n1", domain.ChannelEmail, domain.ChannelSMS)

	res, err := f.dispatcher.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.RecordsProcessed != 1 || res.RecordsAffected != 1 {
		t.Fatalf("result = %+v, want 1 processed 1 affected", res)
	}

	item := f.item(t, "n1")
	if item.Status != domain.StatusSent {
		t.Fatalf("status = %s, want sent", item.Status)
	}
	if item.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", item.Attempts)
	}
	if len(item.ChannelResults) != 2 {
		t.Fatalf("channel results = %d, want 2", len(item.ChannelResults))
	}
	for _, cr := range item.ChannelResults {
		if !cr.Success || cr.ProviderUsed != "primary" {
			t.Fatalf("unexpected channel result %+v", cr)
		}
	}
	if f.email.callCount() != 1 || f.sms.callCount() != 1 {
		t.Fatalf("adapter calls = %d/%d, want 1/1", f.email.callCount(), f.sms.callCount())
	}
}

func TestRunRendersTemplateAndEmbedsPixel(t *testing.T) {
	f := newFixture(t)
	f.seedTemplate(t, domain.ChannelEmail)
	f.seedTemplate(t, domain.ChannelSMS)
	f.seedItem(t, "n1", domain.ChannelEmail, domain.ChannelSMS)

	if _, err := f.dispatcher.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	email := f.email
	email.mu.Lock()
	emailMsg := email.lastMsg
	email.mu.Unlock()
	if emailMsg.Subject != "You have a new match, Ayse!" {
		t.Fatalf("subject = %q, placeholders not rendered", emailMsg.Subject)
	}
	if !strings.Contains(emailMsg.Body, "https://notify.example.com/tracking/pixel/n1") {
		t.Fatalf("email body missing tracking pixel: %q", emailMsg.Body)
	}
	if emailMsg.TrackingID != "n1" {
		t.Fatalf("tracking id = %q", emailMsg.TrackingID)
	}

	f.sms.mu.Lock()
	smsMsg := f.sms.lastMsg
	f.sms.mu.Unlock()
	if strings.Contains(smsMsg.Body, "/tracking/pixel/") {
		t.Fatal("pixel markup must not leak into sms bodies")
	}
}

func TestRunSkipsWhenNoTemplateEnabled(t *testing.T) {
	f := newFixture(t)
	f.seedItem(t, "n1", domain.ChannelEmail)

	if _, err := f.dispatcher.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	item := f.item(t, "n1")
	if item.Status != domain.StatusSkipped {
		t.Fatalf("status = %s, want skipped", item.Status)
	}
	if f.email.callCount() != 0 {
		t.Fatalf("adapter invoked %d times for a skipped item", f.email.callCount())
	}
}

func TestRunReleasesTransientFailureUntilExhausted(t *testing.T) {
	f := newFixture(t)
	f.seedTemplate(t, domain.ChannelEmail)
	f.seedItem(t, "n1", domain.ChannelEmail)
	f.email.result = channel.Result{
		Err: &domain.TransientError{Provider: "secondary", Err: errors.New("timeout")},
	}

	for pass := 1; pass <= 2; pass++ {
		if _, err := f.dispatcher.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", pass, err)
		}
		item := f.item(t, "n1")
		if item.Status != domain.StatusPending {
			t.Fatalf("after pass %d status = %s, want pending", pass, item.Status)
		}
		if item.Attempts != pass {
			t.Fatalf("after pass %d attempts = %d", pass, item.Attempts)
		}
	}

	// Third claim brings attempts to the cap; no release remains.
	if _, err := f.dispatcher.Run(context.Background()); err != nil {
		t.Fatalf("final run: %v", err)
	}
	item := f.item(t, "n1")
	if item.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", item.Status)
	}
	if item.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", item.Attempts)
	}
}

func TestRunFailsFastOnConfigError(t *testing.T) {
	f := newFixture(t)
	f.seedTemplate(t, domain.ChannelEmail)
	f.seedItem(t, "n1", domain.ChannelEmail)
	f.email.result = channel.Result{
		Err: &domain.ConfigError{Reason: "missing api key"},
	}

	if _, err := f.dispatcher.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	item := f.item(t, "n1")
	if item.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed without retry", item.Status)
	}
	if item.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", item.Attempts)
	}
}

func TestRunPartialChannelSuccessIsSent(t *testing.T) {
	f := newFixture(t)
	f.seedTemplate(t, domain.ChannelEmail)
	f.seedTemplate(t, domain.ChannelSMS)
	f.seedItem(t, "n1", domain.ChannelEmail, domain.ChannelSMS)
	f.email.result = channel.Result{
		Err: &domain.TransientError{Provider: "primary", Err: errors.New("503")},
	}

	if _, err := f.dispatcher.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	item := f.item(t, "n1")
	if item.Status != domain.StatusSent {
		t.Fatalf("status = %s, want sent when any channel succeeds", item.Status)
	}
}

func TestRunForceFailsExhaustedItems(t *testing.T) {
	f := newFixture(t)
	err := f.queue.Enqueue(context.Background(), &domain.QueueItem{
		ID:           "poison",
		Recipient:    "user-1",
		Trigger:      "new_match",
		Priority:     domain.PriorityLow,
		Channels:     []domain.Channel{domain.ChannelEmail},
		Status:       domain.StatusPending,
		Attempts:     3,
		ScheduledFor: time.Now().UTC().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := f.dispatcher.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	item := f.item(t, "poison")
	if item.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed via exhaustion sweep", item.Status)
	}
	if f.email.callCount() != 0 {
		t.Fatalf("exhausted item must not reach an adapter")
	}
}

func TestRunLeavesFutureItemsAlone(t *testing.T) {
	f := newFixture(t)
	f.seedTemplate(t, domain.ChannelEmail)
	err := f.queue.Enqueue(context.Background(), &domain.QueueItem{
		ID:           "later",
		Recipient:    "user-1",
		Trigger:      "new_match",
		Priority:     domain.PriorityHigh,
		Channels:     []domain.Channel{domain.ChannelEmail},
		Status:       domain.StatusPending,
		ScheduledFor: time.Now().UTC().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := f.dispatcher.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.RecordsProcessed != 0 {
		t.Fatalf("processed = %d, want 0", res.RecordsProcessed)
	}
	if item := f.item(t, "later"); item.Status != domain.StatusPending || item.Attempts != 0 {
		t.Fatalf("future item touched: %+v", item)
	}
}
