package models

import "time"

// EventType classifies a notification trigger
type EventType string

const (
	EventNewMatch      EventType = "new_match"
	EventScoreImproved EventType = "score_improved"
	EventStatusChanged EventType = "status_changed"
	EventBatchComplete EventType = "batch_complete"
)

// ChannelType identifies a delivery channel implementation
type ChannelType string

const (
	ChannelEmail     ChannelType = "email"
	ChannelChat      ChannelType = "chat"
	ChannelMessenger ChannelType = "messenger"
	ChannelWebhook   ChannelType = "webhook"
	ChannelInApp     ChannelType = "inapp"
)

// NotificationTracker records delivery state per (user, match, event,
// channel) tuple, keyed by DedupHash.
type NotificationTracker struct {
	DedupHash           string `badgerhold:"key"`
	UserID              string `badgerhold:"index"`
	JobMatchID          string
	EventType           EventType
	ChannelType         ChannelType
	ContentHash         string
	LastSentAt          time.Time
	SendCount           int
	AllowResend         bool
	ResendIntervalHours int
	SentSuccessfully    bool
	ErrorMessage        string
}

// Notification is one pending or delivered message payload
type Notification struct {
	ID          string `badgerhold:"key"`
	UserID      string
	JobMatchID  string
	EventType   EventType
	ChannelType ChannelType
	Recipient   string
	Subject     string
	Body        string
	Metadata    map[string]string
	CreatedAt   time.Time
	DeliveredAt *time.Time
	Failed      bool
	Error       string
}

// InAppNotification is a stored in-app message surfaced by the UI layer
type InAppNotification struct {
	ID        string `badgerhold:"key"`
	UserID    string `badgerhold:"index"`
	Subject   string
	Body      string
	Metadata  map[string]string
	CreatedAt time.Time
	Read      bool
}
