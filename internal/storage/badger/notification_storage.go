package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// NotificationStorage implements the NotificationStore interface for Badger
type NotificationStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewNotificationStorage creates a new NotificationStorage instance
func NewNotificationStorage(db *DB, logger arbor.ILogger) interfaces.NotificationStore {
	return &NotificationStorage{
		db:     db,
		logger: logger,
	}
}

// GetTracker returns the tracker row for the dedup hash, or (nil, nil)
func (s *NotificationStorage) GetTracker(ctx context.Context, dedupHash string) (*models.NotificationTracker, error) {
	var tracker models.NotificationTracker
	if err := s.db.Store().Get(dedupHash, &tracker); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification tracker: %w", err)
	}
	return &tracker, nil
}

func (s *NotificationStorage) UpsertTracker(ctx context.Context, tracker *models.NotificationTracker) error {
	if tracker.DedupHash == "" {
		return fmt.Errorf("dedup hash is required")
	}
	if err := s.db.Store().Upsert(tracker.DedupHash, tracker); err != nil {
		return fmt.Errorf("failed to upsert notification tracker: %w", err)
	}
	return nil
}

func (s *NotificationStorage) SaveNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		return fmt.Errorf("notification ID is required")
	}
	if err := s.db.Store().Upsert(n.ID, n); err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

func (s *NotificationStorage) SaveInApp(ctx context.Context, n *models.InAppNotification) error {
	if n.ID == "" {
		return fmt.Errorf("notification ID is required")
	}
	if err := s.db.Store().Upsert(n.ID, n); err != nil {
		return fmt.Errorf("failed to save in-app notification: %w", err)
	}
	return nil
}
