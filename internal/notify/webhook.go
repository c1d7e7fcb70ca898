package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/shielded-scanner/internal/models"
)

// WebhookEnvelope is the fixed JSON body posted to webhook destinations
type WebhookEnvelope struct {
	ID          string                 `json:"id"`
	AlertID     string                 `json:"alertId"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	TriggeredAt time.Time              `json:"triggeredAt"`
	Timestamp   time.Time              `json:"timestamp"`
}

// WebhookSender posts notification envelopes to user-configured URLs.
// Retries are the job queue's concern, not this call's: RetryMax is zero
// and a failed post only reports false.
type WebhookSender struct {
	client *retryablehttp.Client
}

// NewWebhookSender creates a webhook sender with the given per-request timeout
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.HTTPClient.Timeout = timeout
	client.RetryMax = 0

	return &WebhookSender{client: client}
}

// Send posts the notification to the URL. Returns whether the destination
// answered with a 2xx status inside the timeout.
func (w *WebhookSender) Send(ctx context.Context, url string, n *models.AlertNotification) bool {
	envelope := &WebhookEnvelope{
		ID:          n.ID,
		AlertID:     n.AlertID,
		Message:     n.Message,
		Details:     n.Details,
		TriggeredAt: n.TriggeredAt,
		Timestamp:   time.Now().UTC(),
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("[Webhook] Failed to marshal envelope for notification %s: %v", n.ID, err)
		return false
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		log.Printf("[Webhook] Failed to build request for notification %s: %v", n.ID, err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		log.Printf("[Webhook] Post to %s failed: %v", url, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[Webhook] Post to %s returned status %d", url, resp.StatusCode)
		return false
	}
	return true
}
