package common

import (
	"context"
	"sync"
)

// Stop is the cooperative cancellation signal threaded through every stage.
// Stages check Fired() between items and before blocking calls; in-flight
// I/O finishes, no new item is started.
type Stop struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewStop creates a stop signal derived from the given parent context.
// Cancelling the parent fires the stop signal as well.
func NewStop(parent context.Context) *Stop {
	ctx, cancel := context.WithCancel(parent)
	return &Stop{ctx: ctx, cancel: cancel}
}

// Fire signals all observers to cease work. Safe to call multiple times.
func (s *Stop) Fire() {
	s.once.Do(s.cancel)
}

// Fired reports whether the signal has fired
func (s *Stop) Fired() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

// Done exposes the underlying channel for select loops
func (s *Stop) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Context returns a context cancelled when the signal fires
func (s *Stop) Context() context.Context {
	return s.ctx
}
