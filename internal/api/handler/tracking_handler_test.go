package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/metrics"
	"github.com/matchpoint/notify-engine/internal/repository"
	"github.com/matchpoint/notify-engine/internal/tracking"
)

func newTrackingServer(t *testing.T) (http.Handler, *repository.MockQueueRepository) {
	t.Helper()
	qr := repository.NewMockQueueRepository()
	err := qr.Enqueue(context.Background(), &domain.QueueItem{
		ID:        "track-1",
		Recipient: "user-1",
		Trigger:   "new_match",
		Status:    domain.StatusSent,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	collector := tracking.NewCollector(
		repository.NewMockTrackingRepository(), qr,
		metrics.New(prometheus.NewRegistry()), zap.NewNop(),
	)
	th := NewTrackingHandler(collector)

	r := chi.NewRouter()
	r.Get("/tracking/pixel/{id}", th.Pixel)
	r.Get("/tracking/click/{id}", th.Click)
	return r, qr
}

func TestPixelServesImageAndRecordsOpen(t *testing.T) {
	srv, qr := newTrackingServer(t)

	req := httptest.NewRequest(http.MethodGet, "/tracking/pixel/track-1", nil)
	req.RemoteAddr = "203.0.113.47:51234"
	req.Header.Set("User-Agent", "Mozilla/5.0")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content-type = %q", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), tracking.Pixel) {
		t.Fatal("body is not the tracking pixel")
	}

	item, err := qr.Get(context.Background(), "track-1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.OpenCount != 1 {
		t.Fatalf("open count = %d, want 1", item.OpenCount)
	}
}

func TestPixelUnknownIDStillServes(t *testing.T) {
	srv, _ := newTrackingServer(t)

	req := httptest.NewRequest(http.MethodGet, "/tracking/pixel/no-such-id", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, pixel must always render", rec.Code)
	}
}

func TestClickRedirectsAndCounts(t *testing.T) {
	srv, qr := newTrackingServer(t)

	req := httptest.NewRequest(http.MethodGet,
		"/tracking/click/track-1?url=https%3A%2F%2Fexample.com%2Fprofile%2F9&type=profile", nil)
	req.RemoteAddr = "203.0.113.47:51234"
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/profile/9" {
		t.Fatalf("location = %q", loc)
	}

	item, err := qr.Get(context.Background(), "track-1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.ClickCount != 1 {
		t.Fatalf("click count = %d, want 1", item.ClickCount)
	}
}

func TestClickRejectsBadDestination(t *testing.T) {
	srv, qr := newTrackingServer(t)

	for _, target := range []string{
		"/tracking/click/track-1",
		"/tracking/click/track-1?url=javascript%3Aalert(1)",
		"/tracking/click/track-1?url=%2Frelative%2Fpath",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", target, rec.Code)
		}
	}

	item, err := qr.Get(context.Background(), "track-1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.ClickCount != 0 {
		t.Fatalf("click count = %d, rejected redirects must not count", item.ClickCount)
	}
}
