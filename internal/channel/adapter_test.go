package channel_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/matchpoint/notify-engine/internal/channel"
	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/repository"
)

// fakeProvider scripts success or a fixed error and records calls.
type fakeProvider struct {
	name  string
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Send(_ context.Context, _ channel.SendRequest) (*channel.SendResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &channel.SendResponse{MessageID: "msg-1", Status: "accepted"}, nil
}

func transientErr(provider string) error {
	return &domain.TransientError{Provider: provider, Err: errors.New("timeout")}
}

func TestFallbackAdapter_PrimarySucceeds(t *testing.T) {
	primary := &fakeProvider{name: "primary"}
	secondary := &fakeProvider{name: "secondary"}
	a := channel.NewEmailAdapter([]channel.Provider{primary, secondary}, zap.NewNop())

	res := a.Send(context.Background(), "user@example.com", channel.Message{Body: "hi"})

	if !res.Success {
		t.Fatalf("expected success, got err=%v", res.Err)
	}
	if res.ProviderUsed != "primary" {
		t.Fatalf("expected provider_used=primary, got %s", res.ProviderUsed)
	}
	if secondary.calls != 0 {
		t.Fatal("secondary must not be invoked when primary succeeds")
	}
}

// Primary fails transiently, secondary succeeds, result reports secondary.
func TestFallbackAdapter_SecondaryAfterTransient(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: transientErr("primary")}
	secondary := &fakeProvider{name: "secondary"}
	a := channel.NewEmailAdapter([]channel.Provider{primary, secondary}, zap.NewNop())

	res := a.Send(context.Background(), "user@example.com", channel.Message{Body: "hi"})

	if !res.Success {
		t.Fatalf("expected success via secondary, got err=%v", res.Err)
	}
	if res.ProviderUsed != "secondary" {
		t.Fatalf("expected provider_used=secondary, got %s", res.ProviderUsed)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("expected one call each, got primary=%d secondary=%d", primary.calls, secondary.calls)
	}
}

func TestFallbackAdapter_AllProvidersFail(t *testing.T) {
	a := channel.NewSMSAdapter([]channel.Provider{
		&fakeProvider{name: "primary", err: transientErr("primary")},
		&fakeProvider{name: "secondary", err: transientErr("secondary")},
	}, zap.NewNop())

	res := a.Send(context.Background(), "+15550001111", channel.Message{Body: "hi"})

	if res.Success {
		t.Fatal("expected failure after exhausting providers")
	}
	if !domain.IsTransient(res.Err) {
		t.Fatalf("expected transient error, got %v", res.Err)
	}
}

func TestFallbackAdapter_NoProvidersConfigured(t *testing.T) {
	a := channel.NewEmailAdapter(nil, zap.NewNop())
	res := a.Send(context.Background(), "user@example.com", channel.Message{})

	if res.Success {
		t.Fatal("expected failure with no providers")
	}
	if !domain.IsConfig(res.Err) {
		t.Fatalf("expected config error, got %v", res.Err)
	}
}

func TestPushAdapter_PartialDeliveryIsSuccess(t *testing.T) {
	subs := repository.NewMockSubscriptionRepository()
	ctx := context.Background()
	_ = subs.Upsert(ctx, &domain.PushSubscription{ID: "1", Recipient: "priya", DeviceToken: "tok-a"})
	_ = subs.Upsert(ctx, &domain.PushSubscription{ID: "2", Recipient: "priya", DeviceToken: "tok-b"})

	// Provider fails every other call: one token delivers, one does not.
	flaky := &flakyProvider{}
	a := channel.NewPushAdapter([]channel.Provider{flaky}, subs, zap.NewNop())

	res := a.Send(ctx, "priya", channel.Message{Body: "new match"})

	if !res.Success {
		t.Fatalf("partial delivery must be success, got err=%v", res.Err)
	}
	if res.TokensDelivered != 1 || res.TokensFailed != 1 {
		t.Fatalf("expected 1 delivered / 1 failed, got %d/%d", res.TokensDelivered, res.TokensFailed)
	}
}

func TestPushAdapter_NoTokensIsConfigError(t *testing.T) {
	subs := repository.NewMockSubscriptionRepository()
	a := channel.NewPushAdapter([]channel.Provider{&fakeProvider{name: "fcm"}}, subs, zap.NewNop())

	res := a.Send(context.Background(), "nobody", channel.Message{})

	if res.Success {
		t.Fatal("expected failure with no registered tokens")
	}
	if !domain.IsConfig(res.Err) {
		t.Fatalf("expected config error, got %v", res.Err)
	}
}

type flakyProvider struct {
	calls int
}

func (f *flakyProvider) Name() string { return "fcm" }

func (f *flakyProvider) Send(_ context.Context, _ channel.SendRequest) (*channel.SendResponse, error) {
	f.calls++
	if f.calls%2 == 0 {
		return nil, transientErr("fcm")
	}
	return &channel.SendResponse{MessageID: "push-1"}, nil
}
