package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/matchpoint/notify-engine/internal/domain"
)

// ChannelLimiters holds one token bucket limiter per channel type, capping
// outbound provider load. Burst equals the rate so no extra burst capacity
// accumulates beyond the configured per-second maximum.
type ChannelLimiters struct {
	limiters map[domain.Channel]*rate.Limiter
}

// New creates a ChannelLimiters with ratePerSec tokens per second per channel.
func New(ratePerSec int) *ChannelLimiters {
	r := rate.Limit(ratePerSec)
	limiters := make(map[domain.Channel]*rate.Limiter, len(domain.AllChannels))
	for _, ch := range domain.AllChannels {
		limiters[ch] = rate.NewLimiter(r, ratePerSec)
	}
	return &ChannelLimiters{limiters: limiters}
}

// Wait blocks until the channel's limiter grants a token. Called by each
// dispatch worker immediately before the adapter send. Returns a non-nil
// error only if ctx is cancelled while waiting.
func (cl *ChannelLimiters) Wait(ctx context.Context, ch domain.Channel) error {
	return cl.limiters[ch].Wait(ctx)
}
