// Package dispatch drains due notification queue items and delivers them
// through the channel adapters. One Run is one pass: claim a batch, fan it
// out to workers by priority, render, rate-limit, send, finalize.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matchpoint/notify-engine/internal/channel"
	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/metrics"
	"github.com/matchpoint/notify-engine/internal/queue"
	"github.com/matchpoint/notify-engine/internal/ratelimiter"
	"github.com/matchpoint/notify-engine/internal/repository"
	"github.com/matchpoint/notify-engine/internal/template"
)

// Config carries the tunables of a dispatch pass.
type Config struct {
	BatchSize   int
	Workers     int
	MaxAttempts int
	// TrackingBaseURL is the externally reachable base for the pixel and
	// click endpoints, embedded into outgoing email bodies.
	TrackingBaseURL string
}

// Dispatcher owns the delivery pipeline between the durable queue and the
// channel adapters. It holds no per-pass state; Run may be invoked from
// the scheduler and from the manual run endpoint without coordination
// because claiming is atomic at the database.
type Dispatcher struct {
	cfg       Config
	queue     repository.QueueRepository
	templates repository.TemplateRepository
	adapters  map[domain.Channel]channel.Adapter
	limiters  *ratelimiter.ChannelLimiters
	buffer    *queue.Buffer
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func New(
	cfg Config,
	qr repository.QueueRepository,
	tr repository.TemplateRepository,
	adapters []channel.Adapter,
	limiters *ratelimiter.ChannelLimiters,
	buffer *queue.Buffer,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Dispatcher {
	byChannel := make(map[domain.Channel]channel.Adapter, len(adapters))
	for _, a := range adapters {
		byChannel[a.Channel()] = a
	}
	return &Dispatcher{
		cfg:       cfg,
		queue:     qr,
		templates: tr,
		adapters:  byChannel,
		limiters:  limiters,
		buffer:    buffer,
		metrics:   m,
		logger:    logger,
	}
}

// Run executes one dispatch pass. RecordsProcessed counts claimed items,
// RecordsAffected counts items that ended up sent.
func (d *Dispatcher) Run(ctx context.Context) (*domain.JobResult, error) {
	if n, err := d.queue.ForceFailExhausted(ctx, d.cfg.MaxAttempts); err != nil {
		d.logger.Warn("exhaustion sweep failed", zap.Error(err))
	} else if n > 0 {
		d.metrics.ObservePoison(n)
		d.logger.Info("force-failed exhausted queue items", zap.Int64("count", n))
	}

	items, err := d.queue.ClaimDue(ctx, time.Now().UTC(), d.cfg.BatchSize, d.cfg.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("claim due items: %w", err)
	}
	if len(items) == 0 {
		return &domain.JobResult{}, nil
	}

	for _, item := range items {
		if err := d.buffer.Enqueue(queue.Item{Notification: item}); err != nil {
			// Release the claim so the item stays eligible next pass.
			d.logger.Warn("buffer full, releasing claimed item",
				zap.String("id", item.ID), zap.Error(err))
			if ferr := d.queue.Finalize(ctx, item.ID, domain.StatusPending, item.ChannelResults); ferr != nil {
				d.logger.Error("failed to release claimed item",
					zap.String("id", item.ID), zap.Error(ferr))
			}
		}
	}

	d.metrics.ObserveDepths(d.buffer.Depths())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent int
	)
	for w := 0; w < d.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, ok := d.buffer.TryDequeue()
				if !ok {
					return
				}
				if d.processItem(ctx, item.Notification) {
					mu.Lock()
					sent++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	return &domain.JobResult{
		RecordsProcessed: len(items),
		RecordsAffected:  sent,
	}, nil
}

// processItem delivers one claimed item across all its channels and writes
// the terminal status. Reports whether the item ended up sent.
func (d *Dispatcher) processItem(ctx context.Context, item *domain.QueueItem) bool {
	start := time.Now()

	results := make([]domain.ChannelResult, len(item.Channels))
	errs := make([]error, len(item.Channels))
	var cwg sync.WaitGroup
	for i, ch := range item.Channels {
		cwg.Add(1)
		go func(i int, ch domain.Channel) {
			defer cwg.Done()
			results[i], errs[i] = d.sendChannel(ctx, item, ch)
		}(i, ch)
	}
	cwg.Wait()

	status := d.aggregate(item, results, errs)
	if err := d.queue.Finalize(ctx, item.ID, status, results); err != nil {
		d.logger.Error("failed to finalize queue item",
			zap.String("id", item.ID), zap.Error(err))
	}

	for i, ch := range item.Channels {
		d.metrics.ObserveChannel(ch, results[i])
	}
	d.metrics.ObserveItem(item.Priority, time.Since(start))

	d.logger.Debug("processed queue item",
		zap.String("id", item.ID),
		zap.String("trigger", item.Trigger),
		zap.String("status", string(status)),
		zap.Int("attempt", item.Attempts))

	return status == domain.StatusSent
}

// sendChannel renders and sends one channel of one item. A missing enabled
// template is a skip, not a failure. The returned error (the adapter's or a
// wrapper for infrastructure failures) classifies the result for aggregate.
func (d *Dispatcher) sendChannel(ctx context.Context, item *domain.QueueItem, ch domain.Channel) (domain.ChannelResult, error) {
	adapter, ok := d.adapters[ch]
	if !ok {
		err := &domain.ConfigError{Reason: "no adapter configured for channel " + string(ch)}
		return domain.ChannelResult{Channel: ch, Error: err.Error()}, err
	}

	tpl, err := d.templates.GetEnabled(ctx, item.Trigger, ch)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ChannelResult{Channel: ch, Skipped: true}, nil
		}
		terr := &domain.TransientError{Provider: "template-store", Err: err}
		return domain.ChannelResult{Channel: ch, Error: terr.Error()}, terr
	}

	subject := template.Render(tpl.Subject, item.TemplateData)
	body := template.Render(tpl.Body, item.TemplateData)
	if !body.Complete() {
		d.logger.Warn("template rendered with unresolved placeholders",
			zap.String("id", item.ID),
			zap.String("trigger", item.Trigger),
			zap.String("channel", string(ch)),
			zap.Strings("unresolved", body.Unresolved))
	}

	if err := d.limiters.Wait(ctx, ch); err != nil {
		terr := &domain.TransientError{Provider: "rate-limiter", Err: err}
		return domain.ChannelResult{Channel: ch, Error: terr.Error()}, terr
	}

	msg := channel.Message{
		Subject:    subject.Output,
		Body:       body.Output,
		TrackingID: item.ID,
	}
	if ch == domain.ChannelEmail && d.cfg.TrackingBaseURL != "" {
		msg.Body += fmt.Sprintf(
			`<img src="%s/tracking/pixel/%s" width="1" height="1" alt="">`,
			d.cfg.TrackingBaseURL, item.ID)
	}

	res := adapter.Send(ctx, item.Recipient, msg)

	cr := domain.ChannelResult{
		Channel:      ch,
		Success:      res.Success,
		ProviderUsed: res.ProviderUsed,
	}
	if res.Err != nil {
		cr.Error = res.Err.Error()
	}
	return cr, res.Err
}

// aggregate folds the per-channel outcomes into the item's next status.
// Any success wins; an all-skip is skipped; attempted failures end the
// item unless a transient failure remains retryable, in which case the
// item is released back to pending for the next pass.
func (d *Dispatcher) aggregate(item *domain.QueueItem, results []domain.ChannelResult, errs []error) domain.Status {
	anySent := false
	allSkipped := true
	anyTransient := false
	for i, r := range results {
		if r.Success {
			anySent = true
		}
		if !r.Skipped {
			allSkipped = false
		}
		if !r.Success && !r.Skipped && !domain.IsConfig(errs[i]) {
			anyTransient = true
		}
	}

	switch {
	case anySent:
		return domain.StatusSent
	case allSkipped:
		return domain.StatusSkipped
	case anyTransient && item.Attempts < d.cfg.MaxAttempts:
		return domain.StatusPending
	default:
		return domain.StatusFailed
	}
}
