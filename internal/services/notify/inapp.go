package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// InAppChannel stores notifications in the database for the UI layer to
// surface. Always configured; delivery cannot rate limit.
type InAppChannel struct {
	store  interfaces.NotificationStore
	logger arbor.ILogger
}

// NewInAppChannel creates an in-app channel backed by the notification store
func NewInAppChannel(store interfaces.NotificationStore, logger arbor.ILogger) *InAppChannel {
	return &InAppChannel{
		store:  store,
		logger: logger,
	}
}

func (c *InAppChannel) Type() models.ChannelType {
	return models.ChannelInApp
}

func (c *InAppChannel) IsConfigured() bool {
	return c.store != nil
}

func (c *InAppChannel) Send(ctx context.Context, recipient, subject, body string, metadata map[string]string) interfaces.SendResult {
	notification := &models.InAppNotification{
		ID:        uuid.New().String(),
		UserID:    recipient,
		Subject:   subject,
		Body:      body,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	if err := c.store.SaveInApp(ctx, notification); err != nil {
		return interfaces.SendResult{Err: fmt.Errorf("failed to store in-app notification: %w", err)}
	}
	return interfaces.SendResult{Success: true}
}
