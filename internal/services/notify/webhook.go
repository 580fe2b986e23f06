package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// WebhookChannel posts a JSON payload to a user-supplied URL. The URL is
// validated against internal address ranges at construction and again at
// send time, since DNS answers can change between the two.
type WebhookChannel struct {
	url     string
	secret  string
	http    *http.Client
	logger  arbor.ILogger
	urlErr  error
	checked bool
}

// NewWebhookChannel creates a webhook channel from channel options:
// webhook_url (required), webhook_secret (optional bearer token).
func NewWebhookChannel(cfg common.ChannelConfig, logger arbor.ILogger) *WebhookChannel {
	channel := &WebhookChannel{
		url:    cfg.Options["webhook_url"],
		secret: cfg.Options["webhook_secret"],
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
	if channel.url != "" {
		channel.urlErr = ValidateWebhookURL(channel.url)
		channel.checked = true
		if channel.urlErr != nil {
			logger.Warn().Err(channel.urlErr).Msg("Webhook URL rejected")
		}
	}
	return channel
}

func (c *WebhookChannel) Type() models.ChannelType {
	return models.ChannelWebhook
}

func (c *WebhookChannel) IsConfigured() bool {
	return c.url != "" && (!c.checked || c.urlErr == nil)
}

type webhookPayload struct {
	Event    string            `json:"event"`
	Subject  string            `json:"subject"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
	SentAt   time.Time         `json:"sent_at"`
}

func (c *WebhookChannel) Send(ctx context.Context, recipient, subject, body string, metadata map[string]string) interfaces.SendResult {
	if !c.IsConfigured() {
		return interfaces.SendResult{Err: fmt.Errorf("webhook channel not configured")}
	}
	if err := ValidateWebhookURL(c.url); err != nil {
		return interfaces.SendResult{Err: err}
	}

	payload, err := json.Marshal(webhookPayload{
		Event:    metadata["event"],
		Subject:  subject,
		Body:     body,
		Metadata: metadata,
		SentAt:   time.Now(),
	})
	if err != nil {
		return interfaces.SendResult{Err: fmt.Errorf("failed to marshal webhook payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return interfaces.SendResult{Err: fmt.Errorf("failed to build webhook request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return interfaces.SendResult{Err: fmt.Errorf("webhook request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return interfaces.SendResult{RetryAfter: retryAfter, Err: fmt.Errorf("webhook rate limited")}
	}
	if resp.StatusCode >= 400 {
		return interfaces.SendResult{Err: fmt.Errorf("webhook rejected with %d", resp.StatusCode)}
	}

	c.logger.Debug().Str("subject", subject).Msg("Webhook delivered")
	return interfaces.SendResult{Success: true}
}
