package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// retryDelays backs off transient channel failures
var retryDelays = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}

// Dispatcher fans match events out to the configured channels with
// deduplication and cross-worker rate-limit coordination. With the async
// queue enabled, deliveries run on background workers and Close drains them.
type Dispatcher struct {
	config       *common.NotificationsConfig
	channels     []configuredChannel
	store        interfaces.NotificationStore
	coordination interfaces.CoordinationStore
	strategy     DedupStrategy
	logger       arbor.ILogger

	queue chan deliveryTask
	wg    sync.WaitGroup
}

type deliveryTask struct {
	event models.EventType
	match *models.JobMatch
	job   *models.Job
}

// NewDispatcher creates the notifier. Pass a nil coordination store to fall
// back to uncoordinated per-process rate limiting.
func NewDispatcher(config *common.NotificationsConfig, store interfaces.NotificationStore, coordination interfaces.CoordinationStore, logger arbor.ILogger) interfaces.Notifier {
	d := &Dispatcher{
		config:       config,
		channels:     BuildChannels(config, store, logger),
		store:        store,
		coordination: coordination,
		strategy:     ParseStrategy(config.DeduplicationStrategy),
		logger:       logger,
	}

	if config.UseAsyncQueue {
		workers := config.QueueWorkers
		if workers <= 0 {
			workers = 2
		}
		d.queue = make(chan deliveryTask, workers*16)
		for i := 0; i < workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
		logger.Info().Int("workers", workers).Msg("Notification queue started")
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for task := range d.queue {
		// Queue deliveries outlive the enqueuing cycle's context
		d.deliver(context.Background(), task)
	}
}

// NotifyMatch dispatches one match event. Threshold and event-type gates
// apply before any channel work.
func (d *Dispatcher) NotifyMatch(ctx context.Context, event models.EventType, match *models.JobMatch, job *models.Job) error {
	if !d.config.Enabled || len(d.channels) == 0 {
		return nil
	}
	if event == models.EventNewMatch && !d.config.NotifyOnNewMatch {
		return nil
	}
	if match.OverallScore < d.config.MinScoreThreshold {
		d.logger.Debug().
			Str("match_id", match.ID).
			Float64("score", match.OverallScore).
			Msg("Match below notification threshold")
		return nil
	}

	task := deliveryTask{event: event, match: match, job: job}
	if d.queue != nil {
		select {
		case d.queue <- task:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.deliver(ctx, task)
	return nil
}

// NotifyBatchComplete sends a cycle summary to every channel
func (d *Dispatcher) NotifyBatchComplete(ctx context.Context, summary string) error {
	if !d.config.Enabled || !d.config.NotifyOnBatchComplete {
		return nil
	}
	for _, cc := range d.channels {
		result := cc.channel.Send(ctx, cc.recipient, "Matching cycle complete", summary, map[string]string{
			"event": string(models.EventBatchComplete),
		})
		if result.Err != nil {
			d.logger.Warn().
				Err(result.Err).
				Str("channel", string(cc.channel.Type())).
				Msg("Batch summary delivery failed")
		}
	}
	return nil
}

// Close drains the async queue. Safe to call with the queue disabled.
func (d *Dispatcher) Close() error {
	if d.queue != nil {
		close(d.queue)
		d.wg.Wait()
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, task deliveryTask) {
	subject, body := BuildMessage(d.config.BaseURL, task.event, task.match, task.job)
	metadata := map[string]string{
		"event":    string(task.event),
		"match_id": task.match.ID,
		"job_id":   task.job.ID,
		"score":    fmt.Sprintf("%.1f", task.match.OverallScore),
	}

	for _, cc := range d.channels {
		d.deliverToChannel(ctx, cc, task, subject, body, metadata)
	}
}

// deliverToChannel runs the full per-channel protocol: dedup check,
// rate-limit gate, send with retry, tracker update.
func (d *Dispatcher) deliverToChannel(ctx context.Context, cc configuredChannel, task deliveryTask, subject, body string, metadata map[string]string) {
	channelType := cc.channel.Type()
	dedupHash := DedupHash(d.config.UserID, task.match, task.event, channelType)
	contentHash := common.HashKey(subject, body)

	if d.config.DeduplicationEnabled {
		tracker, err := d.store.GetTracker(ctx, dedupHash)
		if err != nil {
			d.logger.Warn().Err(err).Str("channel", string(channelType)).Msg("Tracker lookup failed")
		} else if !ShouldSend(d.strategy, tracker, task.event, contentHash, time.Now()) {
			d.logger.Debug().
				Str("channel", string(channelType)).
				Str("match_id", task.match.ID).
				Msg("Notification suppressed by deduplication")
			return
		}
	}

	result := d.sendWithRetry(ctx, cc, subject, body, metadata)

	tracker := &models.NotificationTracker{
		DedupHash:           dedupHash,
		UserID:              d.config.UserID,
		JobMatchID:          task.match.ID,
		EventType:           task.event,
		ChannelType:         channelType,
		ContentHash:         contentHash,
		LastSentAt:          time.Now(),
		AllowResend:         resendable(task.event) && d.config.ResendIntervalHours > 0,
		ResendIntervalHours: d.config.ResendIntervalHours,
		SentSuccessfully:    result.Success,
	}
	if existing, err := d.store.GetTracker(ctx, dedupHash); err == nil && existing != nil {
		tracker.SendCount = existing.SendCount
	}
	if result.Success {
		tracker.SendCount++
	} else if result.Err != nil {
		tracker.ErrorMessage = result.Err.Error()
	}
	if err := d.store.UpsertTracker(ctx, tracker); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to upsert notification tracker")
	}

	d.recordNotification(ctx, cc, task, subject, body, metadata, result)

	if result.Success {
		d.logger.Info().
			Str("channel", string(channelType)).
			Str("match_id", task.match.ID).
			Str("recipient", MaskRecipient(cc.recipient)).
			Msg("Notification delivered")
	} else if result.Err != nil {
		d.logger.Error().
			Err(result.Err).
			Str("channel", string(channelType)).
			Str("match_id", task.match.ID).
			Msg("Notification delivery failed")
	}
}

// sendWithRetry retries transient failures with fixed backoff and honors
// rate limits announced by the channel or recorded by other workers.
func (d *Dispatcher) sendWithRetry(ctx context.Context, cc configuredChannel, subject, body string, metadata map[string]string) interfaces.SendResult {
	channelName := string(cc.channel.Type())
	rateLimitRetries := 0

	var result interfaces.SendResult
	for attempt := 0; ; attempt++ {
		if !d.waitForRateLimit(ctx, channelName) {
			return interfaces.SendResult{Err: fmt.Errorf("rate limit wait exceeded for channel %s", channelName)}
		}

		result = cc.channel.Send(ctx, cc.recipient, subject, body, metadata)
		if result.Success {
			return result
		}

		if result.RetryAfter > 0 {
			d.recordRateLimit(ctx, channelName, result.RetryAfter)
			rateLimitRetries++
			if rateLimitRetries > d.config.MaxRateLimitRetries {
				return result
			}
			continue
		}

		if attempt >= len(retryDelays) {
			return result
		}
		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			return result
		case <-time.After(retryDelays[attempt]):
		}
	}
}

// waitForRateLimit blocks until any recorded rate-limit deadline for the
// channel passes. Returns false when the deadline exceeds the configured
// maximum wait.
func (d *Dispatcher) waitForRateLimit(ctx context.Context, channel string) bool {
	if d.coordination == nil {
		return true
	}
	deadline, err := d.coordination.RateLimitDeadline(ctx, channel)
	if err != nil {
		d.logger.Warn().Err(err).Str("channel", channel).Msg("Rate limit lookup failed, proceeding")
		return true
	}
	if deadline.IsZero() {
		return true
	}

	wait := time.Until(deadline)
	if wait <= 0 {
		return true
	}
	maxWait := time.Duration(d.config.RateLimitMaxWaitSeconds) * time.Second
	if maxWait > 0 && wait > maxWait {
		d.logger.Warn().
			Str("channel", channel).
			Dur("wait", wait).
			Msg("Rate limit deadline exceeds max wait, giving up")
		return false
	}

	d.logger.Debug().Str("channel", channel).Dur("wait", wait).Msg("Waiting out rate limit")
	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

func (d *Dispatcher) recordRateLimit(ctx context.Context, channel string, retryAfter time.Duration) {
	if d.coordination == nil {
		return
	}
	deadline := time.Now().Add(retryAfter)
	ttl := retryAfter + 5*time.Second
	if err := d.coordination.SetRateLimit(ctx, channel, deadline, ttl); err != nil {
		d.logger.Warn().Err(err).Str("channel", channel).Msg("Failed to record rate limit")
	}
}

func (d *Dispatcher) recordNotification(ctx context.Context, cc configuredChannel, task deliveryTask, subject, body string, metadata map[string]string, result interfaces.SendResult) {
	notification := &models.Notification{
		ID:          uuid.New().String(),
		UserID:      d.config.UserID,
		JobMatchID:  task.match.ID,
		EventType:   task.event,
		ChannelType: cc.channel.Type(),
		Recipient:   cc.recipient,
		Subject:     subject,
		Body:        body,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}
	if result.Success {
		now := time.Now()
		notification.DeliveredAt = &now
	} else {
		notification.Failed = true
		if result.Err != nil {
			notification.Error = result.Err.Error()
		}
	}
	if err := d.store.SaveNotification(ctx, notification); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to record notification")
	}
}

// BuildMessage renders the subject and HTML body for one match event.
// Job-sourced fields are escaped before they reach any HTML channel.
func BuildMessage(baseURL string, event models.EventType, match *models.JobMatch, job *models.Job) (string, string) {
	title := EscapeHTML(job.Title)
	company := EscapeHTML(job.Company)

	var subject string
	switch event {
	case models.EventScoreImproved:
		subject = fmt.Sprintf("Score improved: %s at %s (%.0f)", job.Title, job.Company, match.OverallScore)
	default:
		subject = fmt.Sprintf("New match: %s at %s (%.0f)", job.Title, job.Company, match.OverallScore)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<h3>%s at %s</h3>", title, company)
	if job.LocationText != "" {
		fmt.Fprintf(&b, "<p>%s</p>", EscapeHTML(job.LocationText))
	}
	fmt.Fprintf(&b, "<p>Overall score: <b>%.1f</b> (fit %.1f", match.OverallScore, match.FitScore)
	if match.WantScore > 0 {
		fmt.Fprintf(&b, ", want %.1f", match.WantScore)
	}
	b.WriteString(")</p>")
	fmt.Fprintf(&b, "<p>Required coverage: %.0f%%, preferred: %.0f%%</p>",
		match.RequiredCoverage*100, match.PreferredCoverage*100)
	if job.SalaryMin != nil && job.SalaryMax != nil {
		fmt.Fprintf(&b, "<p>Salary: %.0f - %.0f %s</p>", *job.SalaryMin, *job.SalaryMax, EscapeHTML(job.Currency))
	}
	if baseURL != "" {
		fmt.Fprintf(&b, `<p><a href="%s/matches/%s">View match</a></p>`, baseURL, match.ID)
	}
	return subject, b.String()
}
