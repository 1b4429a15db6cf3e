// Package channel wraps delivery providers behind one adapter contract
// per channel. Adapters never panic or leak provider errors past their
// boundary: callers always receive a structured Result.
package channel

import (
	"context"

	"github.com/matchpoint/notify-engine/internal/domain"
)

// Message is the rendered payload handed to an adapter.
type Message struct {
	Subject string
	Body    string
	// TrackingID threads the queue item id through to providers that
	// embed open/click tracking links.
	TrackingID string
}

// Result is the structured outcome of one adapter send.
type Result struct {
	Success      bool
	ProviderUsed string
	// Err carries the last failure (a *domain.TransientError or
	// *domain.ConfigError) when Success is false.
	Err error
	// Token counts for push partial delivery; zero for other channels.
	TokensDelivered int
	TokensFailed    int
}

// Adapter delivers one rendered message to one recipient over one channel,
// falling through an ordered provider list on transient failure.
type Adapter interface {
	Channel() domain.Channel
	Send(ctx context.Context, recipient string, msg Message) Result
}
