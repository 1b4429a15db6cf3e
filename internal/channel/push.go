package channel

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/repository"
)

// pushAdapter resolves a recipient to their active device tokens and
// delivers per token. Partial delivery (some tokens succeed, some fail)
// counts as adapter success; only zero delivered tokens is a failure.
type pushAdapter struct {
	providers []Provider
	subs      repository.SubscriptionRepository
	logger    *zap.Logger
}

func NewPushAdapter(providers []Provider, subs repository.SubscriptionRepository, logger *zap.Logger) Adapter {
	return &pushAdapter{providers: providers, subs: subs, logger: logger}
}

func (a *pushAdapter) Channel() domain.Channel { return domain.ChannelPush }

func (a *pushAdapter) Send(ctx context.Context, recipient string, msg Message) Result {
	if len(a.providers) == 0 {
		return Result{Err: &domain.ConfigError{Reason: "no push provider configured"}}
	}

	tokens, err := a.subs.ActiveTokens(ctx, recipient)
	if err != nil {
		return Result{Err: &domain.TransientError{Provider: "subscriptions", Err: err}}
	}
	if len(tokens) == 0 {
		return Result{Err: &domain.ConfigError{
			Reason: "no active device tokens for recipient",
		}}
	}

	var (
		delivered, failed int
		providerUsed      string
		lastErr           error
	)
	for _, token := range tokens {
		used, err := a.sendToken(ctx, recipient, token, msg)
		if err != nil {
			failed++
			lastErr = err
			a.logger.Warn("push token delivery failed",
				zap.String("recipient", recipient),
				zap.Error(err),
			)
			continue
		}
		delivered++
		providerUsed = used
	}

	if delivered == 0 {
		return Result{TokensFailed: failed, Err: lastErr}
	}
	return Result{
		Success:         true,
		ProviderUsed:    providerUsed,
		TokensDelivered: delivered,
		TokensFailed:    failed,
	}
}

// sendToken runs the provider fallback chain for one device token.
func (a *pushAdapter) sendToken(ctx context.Context, recipient, token string, msg Message) (string, error) {
	req := SendRequest{
		To:          recipient,
		Channel:     string(domain.ChannelPush),
		Subject:     msg.Subject,
		Body:        msg.Body,
		DeviceToken: token,
		TrackingID:  msg.TrackingID,
	}

	var lastErr error
	for _, p := range a.providers {
		if _, err := p.Send(ctx, req); err == nil {
			return p.Name(), nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no provider attempted")
	}
	return "", lastErr
}
