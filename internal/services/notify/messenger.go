package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

const defaultMessengerAPI = "https://api.telegram.org"

// MessengerChannel sends notifications through a Telegram-style bot API.
// Options: bot_token, api_url (optional). The recipient is the chat id.
type MessengerChannel struct {
	botToken string
	apiURL   string
	http     *http.Client
	logger   arbor.ILogger
}

// NewMessengerChannel creates a messenger channel from channel options
func NewMessengerChannel(cfg common.ChannelConfig, logger arbor.ILogger) *MessengerChannel {
	apiURL := cfg.Options["api_url"]
	if apiURL == "" {
		apiURL = defaultMessengerAPI
	}
	return &MessengerChannel{
		botToken: cfg.Options["bot_token"],
		apiURL:   apiURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

func (c *MessengerChannel) Type() models.ChannelType {
	return models.ChannelMessenger
}

func (c *MessengerChannel) IsConfigured() bool {
	return c.botToken != ""
}

type messengerPayload struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (c *MessengerChannel) Send(ctx context.Context, recipient, subject, body string, metadata map[string]string) interfaces.SendResult {
	if !c.IsConfigured() {
		return interfaces.SendResult{Err: fmt.Errorf("messenger channel not configured")}
	}
	if recipient == "" {
		return interfaces.SendResult{Err: fmt.Errorf("messenger recipient (chat id) is empty")}
	}

	payload, err := json.Marshal(messengerPayload{
		ChatID:    recipient,
		Text:      "<b>" + subject + "</b>\n" + body,
		ParseMode: "HTML",
	})
	if err != nil {
		return interfaces.SendResult{Err: fmt.Errorf("failed to marshal messenger payload: %w", err)}
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return interfaces.SendResult{Err: fmt.Errorf("failed to build messenger request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return interfaces.SendResult{Err: fmt.Errorf("messenger request failed: %w", err)}
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.logger.Warn().Dur("retry_after", retryAfter).Msg("Messenger channel rate limited")
		return interfaces.SendResult{
			RetryAfter: retryAfter,
			Err:        fmt.Errorf("messenger rate limited"),
		}
	}
	if resp.StatusCode >= 400 {
		return interfaces.SendResult{
			Err: fmt.Errorf("messenger rejected with %d: %s", resp.StatusCode, common.TruncateString(string(data), 200)),
		}
	}

	c.logger.Debug().
		Str("chat_id", MaskRecipient(recipient)).
		Msg("Messenger message sent")
	return interfaces.SendResult{Success: true}
}

// parseRetryAfter reads a Retry-After header in seconds, defaulting to 30s
func parseRetryAfter(header string) time.Duration {
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 30 * time.Second
}
