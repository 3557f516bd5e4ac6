// Package notify delivers charge lifecycle events to the merchant's
// callback endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brpag/pix-gateway/internal/core/domain"
)

// WebhookNotifier implements ports.Notifier by POSTing events to one
// configured URL. The shared secret travels in the X-Webhook-Secret
// header so the receiver can authenticate the delivery.
type WebhookNotifier struct {
	url        string
	secret     string
	httpClient *http.Client
}

// NewWebhookNotifier builds a notifier for the given callback URL.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// NotifyPaymentEvent posts one event. Any outcome other than a 2xx is a
// failed delivery.
func (n *WebhookNotifier) NotifyPaymentEvent(ctx context.Context, event domain.NotificationEvent) error {
	jsonBody, err := json.Marshal(event)
	if err != nil {
		return domain.NewServiceError(domain.ErrNotifyFailed,
			"failed to marshal event", "MARSHAL_ERROR")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(jsonBody))
	if err != nil {
		return domain.NewServiceError(domain.ErrNotifyFailed,
			"failed to create request", "REQUEST_ERROR")
	}

	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set("X-Webhook-Secret", n.secret)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return domain.NewServiceError(domain.ErrNotifyFailed,
			"request failed: "+err.Error(), "HTTP_ERROR")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return domain.NewServiceError(domain.ErrNotifyFailed,
			fmt.Sprintf("callback returned status %d: %s", resp.StatusCode, string(body)),
			"CALLBACK_ERROR")
	}

	return nil
}
