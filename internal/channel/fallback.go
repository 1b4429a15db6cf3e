package channel

import (
	"context"

	"go.uber.org/zap"

	"github.com/matchpoint/notify-engine/internal/domain"
)

// fallbackAdapter is the shared email/SMS implementation: try providers in
// order, fall through on transient failures, stop early on configuration
// failures (a second provider cannot fix a bad payload or missing
// credentials on the item itself — but each provider's own auth failure
// still falls through, since the secondary may be configured correctly).
type fallbackAdapter struct {
	channel   domain.Channel
	providers []Provider
	logger    *zap.Logger
}

// NewEmailAdapter wraps the configured email providers.
func NewEmailAdapter(providers []Provider, logger *zap.Logger) Adapter {
	return &fallbackAdapter{channel: domain.ChannelEmail, providers: providers, logger: logger}
}

// NewSMSAdapter wraps the configured SMS providers.
func NewSMSAdapter(providers []Provider, logger *zap.Logger) Adapter {
	return &fallbackAdapter{channel: domain.ChannelSMS, providers: providers, logger: logger}
}

func (a *fallbackAdapter) Channel() domain.Channel { return a.channel }

func (a *fallbackAdapter) Send(ctx context.Context, recipient string, msg Message) Result {
	if len(a.providers) == 0 {
		return Result{Err: &domain.ConfigError{
			Reason: "no " + string(a.channel) + " provider configured",
		}}
	}

	req := SendRequest{
		To:         recipient,
		Channel:    string(a.channel),
		Subject:    msg.Subject,
		Body:       msg.Body,
		TrackingID: msg.TrackingID,
	}

	var lastErr error
	for _, p := range a.providers {
		_, err := p.Send(ctx, req)
		if err == nil {
			return Result{
				Success:      true,
				ProviderUsed: p.Name(),
			}
		}
		lastErr = err
		a.logger.Warn("provider send failed",
			zap.String("channel", string(a.channel)),
			zap.String("provider", p.Name()),
			zap.Error(err),
		)
	}

	return Result{Err: lastErr}
}
