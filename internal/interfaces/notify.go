package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/aptus/internal/models"
)

// SendResult reports one channel delivery attempt. RetryAfter is non-zero
// when the channel was rate limited.
type SendResult struct {
	Success    bool
	RetryAfter time.Duration
	Err        error
}

// Channel is one notification delivery mechanism. Implementations validate
// their own configuration and refuse to send when unconfigured.
type Channel interface {
	Type() models.ChannelType
	IsConfigured() bool
	Send(ctx context.Context, recipient, subject, body string, metadata map[string]string) SendResult
}

// Notifier dispatches notifications for scored matches
type Notifier interface {
	NotifyMatch(ctx context.Context, event models.EventType, match *models.JobMatch, job *models.Job) error
	NotifyBatchComplete(ctx context.Context, summary string) error
	Close() error
}

// CoordinationStore is the small shared store used for cross-worker
// rate-limit coordination. Keys carry a TTL.
type CoordinationStore interface {
	// SetRateLimit records a deadline under rate_limit:<channel> with TTL
	SetRateLimit(ctx context.Context, channel string, deadline time.Time, ttl time.Duration) error

	// RateLimitDeadline returns the recorded deadline, or zero time when no
	// limit is active
	RateLimitDeadline(ctx context.Context, channel string) (time.Time, error)
}
