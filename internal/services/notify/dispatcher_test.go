package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
	"github.com/ternarybob/aptus/internal/services/coordination"
	storagebadger "github.com/ternarybob/aptus/internal/storage/badger"
)

// fakeChannel replays scripted send results, defaulting to success
type fakeChannel struct {
	mu      sync.Mutex
	results []interfaces.SendResult
	calls   int
}

func (f *fakeChannel) Type() models.ChannelType { return models.ChannelWebhook }
func (f *fakeChannel) IsConfigured() bool       { return true }

func (f *fakeChannel) Send(ctx context.Context, recipient, subject, body string, metadata map[string]string) interfaces.SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return interfaces.SendResult{Success: true}
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

func (f *fakeChannel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastRetries(t *testing.T) {
	t.Helper()
	orig := retryDelays
	retryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	t.Cleanup(func() { retryDelays = orig })
}

func dispatcherConfig() *common.NotificationsConfig {
	return &common.NotificationsConfig{
		Enabled:                 true,
		UserID:                  "user-1",
		NotifyOnNewMatch:        true,
		DeduplicationEnabled:    true,
		MaxRateLimitRetries:     3,
		RateLimitMaxWaitSeconds: 5,
	}
}

func newTestDispatcher(t *testing.T, config *common.NotificationsConfig, channel interfaces.Channel) (*Dispatcher, interfaces.NotificationStore) {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := storagebadger.NewDB(logger, &common.DatabaseConfig{URL: t.TempDir() + "/data"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := storagebadger.NewNotificationStorage(db, logger)

	d := &Dispatcher{
		config:       config,
		channels:     []configuredChannel{{channel: channel, recipient: "dev@example.com"}},
		store:        store,
		coordination: coordination.NewMemoryStore(),
		strategy:     ParseStrategy(config.DeduplicationStrategy),
		logger:       logger,
	}
	return d, store
}

func matchFixture(score float64) (*models.JobMatch, *models.Job) {
	match := &models.JobMatch{
		ID:                "match-1",
		JobID:             "job-1",
		ResumeFingerprint: "resume-1",
		OverallScore:      score,
		FitScore:          score,
		RequiredCoverage:  1.0,
	}
	job := &models.Job{ID: "job-1", Title: "Engineer", Company: "Acme"}
	return match, job
}

func TestDispatcher_DeliversAndSuppressesDuplicate(t *testing.T) {
	channel := &fakeChannel{}
	d, store := newTestDispatcher(t, dispatcherConfig(), channel)
	ctx := context.Background()
	match, job := matchFixture(85)

	require.NoError(t, d.NotifyMatch(ctx, models.EventNewMatch, match, job))
	assert.Equal(t, 1, channel.callCount())

	tracker, err := store.GetTracker(ctx, DedupHash("user-1", match, models.EventNewMatch, models.ChannelWebhook))
	require.NoError(t, err)
	require.NotNil(t, tracker)
	assert.True(t, tracker.SentSuccessfully)
	assert.Equal(t, 1, tracker.SendCount)

	// The same event for the same match goes nowhere
	require.NoError(t, d.NotifyMatch(ctx, models.EventNewMatch, match, job))
	assert.Equal(t, 1, channel.callCount())
}

func TestDispatcher_BelowThresholdSkipped(t *testing.T) {
	config := dispatcherConfig()
	config.MinScoreThreshold = 70
	channel := &fakeChannel{}
	d, _ := newTestDispatcher(t, config, channel)

	match, job := matchFixture(60)
	require.NoError(t, d.NotifyMatch(context.Background(), models.EventNewMatch, match, job))
	assert.Zero(t, channel.callCount())
}

func TestDispatcher_NewMatchGateDisabled(t *testing.T) {
	config := dispatcherConfig()
	config.NotifyOnNewMatch = false
	channel := &fakeChannel{}
	d, _ := newTestDispatcher(t, config, channel)

	match, job := matchFixture(85)
	require.NoError(t, d.NotifyMatch(context.Background(), models.EventNewMatch, match, job))
	assert.Zero(t, channel.callCount())

	// Other events are unaffected by the new-match gate
	require.NoError(t, d.NotifyMatch(context.Background(), models.EventScoreImproved, match, job))
	assert.Equal(t, 1, channel.callCount())
}

func TestDispatcher_RetriesTransientFailure(t *testing.T) {
	fastRetries(t)
	channel := &fakeChannel{results: []interfaces.SendResult{
		{Err: assert.AnError},
		{Success: true},
	}}
	d, store := newTestDispatcher(t, dispatcherConfig(), channel)
	ctx := context.Background()
	match, job := matchFixture(85)

	require.NoError(t, d.NotifyMatch(ctx, models.EventNewMatch, match, job))
	assert.Equal(t, 2, channel.callCount())

	tracker, err := store.GetTracker(ctx, DedupHash("user-1", match, models.EventNewMatch, models.ChannelWebhook))
	require.NoError(t, err)
	require.NotNil(t, tracker)
	assert.True(t, tracker.SentSuccessfully)
}

func TestDispatcher_FailureRecordedAndRetriedNextCycle(t *testing.T) {
	fastRetries(t)
	failures := make([]interfaces.SendResult, len(retryDelays)+1)
	for i := range failures {
		failures[i] = interfaces.SendResult{Err: assert.AnError}
	}
	channel := &fakeChannel{results: failures}
	d, store := newTestDispatcher(t, dispatcherConfig(), channel)
	ctx := context.Background()
	match, job := matchFixture(85)

	require.NoError(t, d.NotifyMatch(ctx, models.EventNewMatch, match, job))
	assert.Equal(t, len(retryDelays)+1, channel.callCount())

	tracker, err := store.GetTracker(ctx, DedupHash("user-1", match, models.EventNewMatch, models.ChannelWebhook))
	require.NoError(t, err)
	require.NotNil(t, tracker)
	assert.False(t, tracker.SentSuccessfully)
	assert.NotEmpty(t, tracker.ErrorMessage)

	// A failed tracker never suppresses the next attempt
	require.NoError(t, d.NotifyMatch(ctx, models.EventNewMatch, match, job))
	assert.Equal(t, len(retryDelays)+2, channel.callCount())
}

func TestDispatcher_RateLimitWaitAndRetry(t *testing.T) {
	channel := &fakeChannel{results: []interfaces.SendResult{
		{RetryAfter: 20 * time.Millisecond},
		{Success: true},
	}}
	d, _ := newTestDispatcher(t, dispatcherConfig(), channel)
	ctx := context.Background()
	match, job := matchFixture(85)

	start := time.Now()
	require.NoError(t, d.NotifyMatch(ctx, models.EventNewMatch, match, job))
	assert.Equal(t, 2, channel.callCount())

	// The second attempt waited out the recorded deadline
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	deadline, err := d.coordination.RateLimitDeadline(ctx, string(models.ChannelWebhook))
	require.NoError(t, err)
	assert.False(t, deadline.IsZero())
}

func TestDispatcher_RateLimitRetryBudget(t *testing.T) {
	config := dispatcherConfig()
	config.MaxRateLimitRetries = 1
	channel := &fakeChannel{results: []interfaces.SendResult{
		{RetryAfter: time.Millisecond},
		{RetryAfter: time.Millisecond},
		{RetryAfter: time.Millisecond},
	}}
	d, store := newTestDispatcher(t, config, channel)
	ctx := context.Background()
	match, job := matchFixture(85)

	require.NoError(t, d.NotifyMatch(ctx, models.EventNewMatch, match, job))
	// One initial attempt plus one allowed rate-limit retry
	assert.Equal(t, 2, channel.callCount())

	tracker, err := store.GetTracker(ctx, DedupHash("user-1", match, models.EventNewMatch, models.ChannelWebhook))
	require.NoError(t, err)
	require.NotNil(t, tracker)
	assert.False(t, tracker.SentSuccessfully)
}

func TestDispatcher_GivesUpWhenDeadlineExceedsMaxWait(t *testing.T) {
	config := dispatcherConfig()
	config.RateLimitMaxWaitSeconds = 1
	channel := &fakeChannel{}
	d, _ := newTestDispatcher(t, config, channel)
	ctx := context.Background()

	// Another worker recorded a long rate-limit deadline for this channel
	require.NoError(t, d.coordination.SetRateLimit(ctx, string(models.ChannelWebhook), time.Now().Add(time.Minute), 2*time.Minute))

	match, job := matchFixture(85)
	require.NoError(t, d.NotifyMatch(ctx, models.EventNewMatch, match, job))
	assert.Zero(t, channel.callCount())
}

func TestDispatcher_DisabledDoesNothing(t *testing.T) {
	config := dispatcherConfig()
	config.Enabled = false
	channel := &fakeChannel{}
	d, _ := newTestDispatcher(t, config, channel)

	match, job := matchFixture(85)
	require.NoError(t, d.NotifyMatch(context.Background(), models.EventNewMatch, match, job))
	assert.Zero(t, channel.callCount())
}
