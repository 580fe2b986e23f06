package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
)

// Scheduler runs pipeline cycles on a fixed interval. Overlapping cycles
// are skipped rather than queued: a long cycle means the next tick is a
// no-op.
type Scheduler struct {
	pipeline *Pipeline
	mode     Mode
	interval time.Duration
	cron     *cron.Cron
	logger   arbor.ILogger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler for the given mode and interval
func NewScheduler(pipeline *Pipeline, mode Mode, intervalSeconds int, logger arbor.ILogger) *Scheduler {
	interval := time.Duration(intervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		pipeline: pipeline,
		mode:     mode,
		interval: interval,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers the cycle job and starts the cron loop. The first cycle
// runs immediately rather than waiting a full interval.
func (s *Scheduler) Start(ctx context.Context, stop *common.Stop) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		s.runOnce(ctx, stop)
	}); err != nil {
		return fmt.Errorf("failed to schedule pipeline: %w", err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("interval", s.interval.String()).
		Str("mode", string(s.mode)).
		Msg("Pipeline scheduler started")

	go s.runOnce(ctx, stop)
	return nil
}

// Stop halts the cron loop and waits for a running cycle's job entries to
// return
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info().Msg("Pipeline scheduler stopped")
}

func (s *Scheduler) runOnce(ctx context.Context, stop *common.Stop) {
	if stop != nil && stop.Fired() {
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous cycle still running, skipping tick")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if _, err := s.pipeline.RunCycle(ctx, s.mode, stop); err != nil {
		s.logger.Error().Err(err).Msg("Pipeline cycle failed")
	}
}
