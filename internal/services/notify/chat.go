package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// ChatChannel posts match notifications to a Slack incoming webhook.
// Option: webhook_url.
type ChatChannel struct {
	webhookURL string
	logger     arbor.ILogger
}

// NewChatChannel creates a chat channel from channel options
func NewChatChannel(cfg common.ChannelConfig, logger arbor.ILogger) *ChatChannel {
	return &ChatChannel{
		webhookURL: cfg.Options["webhook_url"],
		logger:     logger,
	}
}

func (c *ChatChannel) Type() models.ChannelType {
	return models.ChannelChat
}

func (c *ChatChannel) IsConfigured() bool {
	return c.webhookURL != ""
}

// Send posts one message. A rate-limited response surfaces RetryAfter so the
// dispatcher can coordinate backoff across workers.
func (c *ChatChannel) Send(ctx context.Context, recipient, subject, body string, metadata map[string]string) interfaces.SendResult {
	if !c.IsConfigured() {
		return interfaces.SendResult{Err: fmt.Errorf("chat channel not configured")}
	}

	msg := &slack.WebhookMessage{
		Text: "*" + subject + "*\n" + body,
	}
	if recipient != "" {
		msg.Channel = recipient
	}

	if err := slack.PostWebhookContext(ctx, c.webhookURL, msg); err != nil {
		var rateLimited *slack.RateLimitedError
		if errors.As(err, &rateLimited) {
			c.logger.Warn().
				Dur("retry_after", rateLimited.RetryAfter).
				Msg("Chat channel rate limited")
			return interfaces.SendResult{RetryAfter: rateLimited.RetryAfter, Err: err}
		}
		return interfaces.SendResult{Err: fmt.Errorf("chat webhook failed: %w", err)}
	}

	c.logger.Debug().Str("subject", subject).Msg("Chat message sent")
	return interfaces.SendResult{Success: true}
}
