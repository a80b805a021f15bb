// Package push hands notifications to an external push provider over
// HTTP. The provider is opaque to the engine and may be absent in a
// deployment; everything here is fire-and-forget with a hard timeout.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"notification-engine/internal/domain"
	"notification-engine/pkg/notifier"
)

// DefaultTimeout bounds one provider call. There is no retry at this
// layer; retries belong to the provider or a higher-level outbox.
const DefaultTimeout = 5 * time.Second

var ErrNotConfigured = errors.New("push provider not configured")

// Provider is the outbound contract to the push service.
type Provider interface {
	Send(ctx context.Context, recipientID string, payload *domain.Event) error
}

// HTTPProvider posts the event to a provider endpoint with a bearer key.
type HTTPProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPProvider(endpoint, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type providerRequest struct {
	RecipientID string        `json:"recipient_id"`
	Payload     *domain.Event `json:"payload"`
}

// Send implements Provider.
func (p *HTTPProvider) Send(ctx context.Context, recipientID string, payload *domain.Event) error {
	body, err := json.Marshal(providerRequest{RecipientID: recipientID, Payload: payload})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push provider returned %d", resp.StatusCode)
	}
	return nil
}

// PushChannel adapts a Provider to the notifier.Channel contract. A nil
// provider means the feature is flagged off for this deployment.
type PushChannel struct {
	provider Provider
	timeout  time.Duration
}

func NewPushChannel(provider Provider, timeout time.Duration) *PushChannel {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PushChannel{provider: provider, timeout: timeout}
}

func (p *PushChannel) Name() domain.Channel { return domain.ChannelPush }

// Deliver implements notifier.Channel. Provider failures are returned
// inside the Outcome and logged, never raised.
func (p *PushChannel) Deliver(ctx context.Context, recipientID string, event *domain.Event) notifier.Outcome {
	if p.provider == nil {
		return notifier.Outcome{Attempted: false, Err: ErrNotConfigured}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.provider.Send(ctx, recipientID, event); err != nil {
		log.Printf("[push] delivery failed for user=%s type=%s: %v", recipientID, event.Type, err)
		return notifier.Outcome{Attempted: true, Delivered: false, Err: err}
	}
	return notifier.Outcome{Attempted: true, Delivered: true}
}
