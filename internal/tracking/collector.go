package tracking

import (
	"context"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/metrics"
	"github.com/matchpoint/notify-engine/internal/repository"
)

// Collector records engagement events against queue items. All recording
// is best-effort: failures are logged and never surfaced to the HTTP
// caller, so a broken database can't break pixel or redirect delivery.
type Collector struct {
	tracking repository.TrackingRepository
	queue    repository.QueueRepository
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewCollector(tr repository.TrackingRepository, qr repository.QueueRepository, m *metrics.Metrics, logger *zap.Logger) *Collector {
	return &Collector{
		tracking: tr,
		queue:    qr,
		metrics:  m,
		logger:   logger,
	}
}

// RecordOpen stores an open event for the given tracking id. Repeated opens
// from the same coarsened IP and user agent are collapsed into one; only the
// first occurrence bumps the notification's open counter.
func (c *Collector) RecordOpen(ctx context.Context, trackingID, rawIP, userAgent string) {
	ev := &domain.TrackingEvent{
		ID:         uuid.NewString(),
		TrackingID: trackingID,
		EventType:  domain.EventOpen,
		IP:         CoarsenIP(rawIP),
		UserAgent:  userAgent,
		CreatedAt:  time.Now().UTC(),
	}

	inserted, err := c.tracking.InsertOpen(ctx, ev)
	if err != nil {
		c.logger.Warn("failed to record open event",
			zap.String("tracking_id", trackingID),
			zap.Error(err))
		return
	}
	if !inserted {
		return
	}

	c.metrics.TrackingOpens.Inc()
	if err := c.queue.IncrementOpen(ctx, trackingID); err != nil {
		c.logger.Warn("failed to increment open count",
			zap.String("tracking_id", trackingID),
			zap.Error(err))
	}
}

// RecordClick stores a click event. Every click is kept; the notification's
// click counter grows with each one.
func (c *Collector) RecordClick(ctx context.Context, trackingID, rawIP, userAgent, destination, linkType string) {
	ev := &domain.TrackingEvent{
		ID:          uuid.NewString(),
		TrackingID:  trackingID,
		EventType:   domain.EventClick,
		LinkType:    linkType,
		Destination: destination,
		IP:          CoarsenIP(rawIP),
		UserAgent:   userAgent,
		CreatedAt:   time.Now().UTC(),
	}

	if err := c.tracking.InsertClick(ctx, ev); err != nil {
		c.logger.Warn("failed to record click event",
			zap.String("tracking_id", trackingID),
			zap.Error(err))
		return
	}

	c.metrics.TrackingClicks.Inc()
	if err := c.queue.IncrementClick(ctx, trackingID); err != nil {
		c.logger.Warn("failed to increment click count",
			zap.String("tracking_id", trackingID),
			zap.Error(err))
	}
}

// Analytics aggregates engagement stats over the given window.
func (c *Collector) Analytics(ctx context.Context, from, to time.Time) (*domain.EngagementStats, error) {
	return c.queue.Stats(ctx, from, to)
}

// CoarsenIP strips the host-identifying tail of an address before storage:
// the last octet of an IPv4 address, everything past the /48 of an IPv6
// address. Unparseable input is stored as empty rather than raw.
func CoarsenIP(raw string) string {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return ""
	}
	if addr.Is4() || addr.Is4In6() {
		b := addr.As4()
		b[3] = 0
		return netip.AddrFrom4(b).String()
	}
	p, err := addr.Prefix(48)
	if err != nil {
		return ""
	}
	return p.Addr().String()
}
