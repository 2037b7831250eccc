package presence

import (
	"context"
	"sync"
	"time"
)

// DefaultDebounceDelay is how long the scheduler waits after the last
// connectivity event before evaluating.
const DefaultDebounceDelay = 10 * time.Second

type SchedulerState int

const (
	StateIdle SchedulerState = iota
	StateScheduled
	StateRunning
)

func (s SchedulerState) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	default:
		return "idle"
	}
}

// Timer is the handle returned by an AfterFunc.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc in production; tests
// inject a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ReportScheduler debounces connectivity events into evaluations. Each
// Trigger replaces the pending schedule, so a burst of events yields one
// evaluation delay after the last of them. Evaluations never overlap: a
// schedule that fires while one is running is folded into a single
// follow-up run.
type ReportScheduler struct {
	mu       sync.Mutex
	ctx      context.Context
	delay    time.Duration
	after    AfterFunc
	evaluate func(ctx context.Context)

	timer   Timer
	gen     uint64
	fireAt  time.Time
	running bool
	rerun   bool
	closed  bool
	idle    chan struct{}
	now     func() time.Time
}

type SchedulerOption func(*ReportScheduler)

func WithAfterFunc(after AfterFunc) SchedulerOption {
	return func(s *ReportScheduler) { s.after = after }
}

func WithClock(now func() time.Time) SchedulerOption {
	return func(s *ReportScheduler) { s.now = now }
}

// NewReportScheduler builds a scheduler that runs evaluate with ctx.
// A non-positive delay selects DefaultDebounceDelay.
func NewReportScheduler(ctx context.Context, delay time.Duration, evaluate func(ctx context.Context), opts ...SchedulerOption) *ReportScheduler {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	s := &ReportScheduler{
		ctx:      ctx,
		delay:    delay,
		after:    realAfterFunc,
		evaluate: evaluate,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger schedules an evaluation at now+delay, replacing any pending one.
func (s *ReportScheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.fireAt = s.now().Add(s.delay)
	s.timer = s.after(s.delay, func() { s.fire(gen) })
}

// State reports Running while an evaluation is active, otherwise
// Scheduled when one is pending, otherwise Idle.
func (s *ReportScheduler) State() (SchedulerState, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.running:
		return StateRunning, time.Time{}
	case s.timer != nil:
		return StateScheduled, s.fireAt
	default:
		return StateIdle, time.Time{}
	}
}

// Stop drops the pending schedule and ignores later triggers. An
// evaluation already running is left to finish.
func (s *ReportScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.rerun = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// WaitIdle blocks until no evaluation is running or ctx is done.
func (s *ReportScheduler) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	if s.idle == nil {
		s.idle = make(chan struct{})
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ReportScheduler) fire(gen uint64) {
	s.mu.Lock()
	// a replaced timer whose Stop lost the race
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.running {
		s.rerun = true
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	for {
		s.evaluate(s.ctx)

		s.mu.Lock()
		if s.rerun && !s.closed {
			s.rerun = false
			s.mu.Unlock()
			continue
		}
		s.running = false
		if s.idle != nil {
			close(s.idle)
			s.idle = nil
		}
		s.mu.Unlock()
		return
	}
}
