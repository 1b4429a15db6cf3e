package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/matchpoint/notify-engine/internal/config"
	"github.com/matchpoint/notify-engine/internal/domain"
)

// SendRequest is the JSON body posted to a delivery provider.
type SendRequest struct {
	To          string `json:"to"`
	Channel     string `json:"channel"`
	Subject     string `json:"subject,omitempty"`
	Body        string `json:"body"`
	DeviceToken string `json:"device_token,omitempty"`
	TrackingID  string `json:"tracking_id,omitempty"`
}

// SendResponse maps a provider's 202 Accepted response body.
type SendResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// Provider is one delivery endpoint for a channel. Mocking this interface
// in tests gives full control over fallback behaviour without real HTTP.
type Provider interface {
	Name() string
	Send(ctx context.Context, req SendRequest) (*SendResponse, error)
}

// HTTPProvider delivers by POSTing JSON to a provider gateway URL.
// Credentials travel as a bearer token; the gateway is expected to answer
// 202 Accepted with a message id.
type HTTPProvider struct {
	name       string
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPProvider(cfg config.ProviderConfig, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		name:   cfg.Name,
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) Send(ctx context.Context, sendReq SendRequest) (*SendResponse, error) {
	body, err := json.Marshal(sendReq)
	if err != nil {
		return nil, &domain.ConfigError{Reason: fmt.Sprintf("marshal request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.ConfigError{Reason: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// Network failure or timeout: the next provider may still succeed.
		return nil, &domain.TransientError{Provider: p.name, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK:
		var sendResp SendResponse
		if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
			return nil, &domain.TransientError{
				Provider: p.name,
				Err:      fmt.Errorf("decode response: %w", err),
			}
		}
		return &sendResp, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &domain.ConfigError{
			Reason: fmt.Sprintf("provider %s rejected credentials (status %d)", p.name, resp.StatusCode),
		}

	default:
		// 429 and 5xx are retryable on the next provider.
		return nil, &domain.TransientError{
			Provider: p.name,
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
}

// compile-time check that HTTPProvider implements Provider
var _ Provider = (*HTTPProvider)(nil)

// BuildProviders turns configured provider slots into clients, in fallback
// order.
func BuildProviders(cfgs []config.ProviderConfig, timeout time.Duration) []Provider {
	out := make([]Provider, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, NewHTTPProvider(c, timeout))
	}
	return out
}
