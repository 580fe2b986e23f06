package notify

import (
	"time"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/models"
)

// DedupStrategy decides how strictly repeat notifications are suppressed
type DedupStrategy string

const (
	// StrategyDefault allows resends for events that represent real change
	// (score improvements, status changes) once the resend interval elapses
	StrategyDefault DedupStrategy = "default"

	// StrategyAggressive never resends a successfully delivered
	// notification, whatever the event or interval
	StrategyAggressive DedupStrategy = "aggressive"
)

// ParseStrategy maps the config string to a strategy, defaulting safely
func ParseStrategy(s string) DedupStrategy {
	if DedupStrategy(s) == StrategyAggressive {
		return StrategyAggressive
	}
	return StrategyDefault
}

// DedupHash computes the tracker key for one delivery attempt. The key
// covers user, match row, event and channel, so a recreated match row (new
// ID) is never suppressed by the old row's history.
func DedupHash(userID string, match *models.JobMatch, event models.EventType, channel models.ChannelType) string {
	return common.HashKey(userID, match.ID, string(event), string(channel))
}

// resendable reports whether an event type may ever be delivered twice for
// the same tracker key
func resendable(event models.EventType) bool {
	return event == models.EventScoreImproved || event == models.EventStatusChanged
}

// ShouldSend decides whether a delivery goes out given its tracker history.
// A missing tracker, a previously failed delivery or changed content always
// sends. Otherwise a resend requires the default strategy, a resendable
// event and the resend interval to have elapsed.
func ShouldSend(strategy DedupStrategy, tracker *models.NotificationTracker, event models.EventType, contentHash string, now time.Time) bool {
	if tracker == nil {
		return true
	}
	if !tracker.SentSuccessfully {
		return true
	}
	if contentHash != "" && tracker.ContentHash != contentHash {
		return true
	}
	if strategy == StrategyAggressive {
		return false
	}
	if !resendable(event) {
		return false
	}
	if tracker.AllowResend && tracker.ResendIntervalHours > 0 {
		interval := time.Duration(tracker.ResendIntervalHours) * time.Hour
		return now.Sub(tracker.LastSentAt) >= interval
	}
	return false
}
