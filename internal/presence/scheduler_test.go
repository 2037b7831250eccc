package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualTimers records scheduled callbacks; tests fire them explicitly.
type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

func (m *manualTimers) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{delay: d, f: f}
	m.timers = append(m.timers, t)
	return t
}

// fireActive runs every timer that was neither stopped nor fired.
func (m *manualTimers) fireActive() int {
	m.mu.Lock()
	var active []*manualTimer
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			active = append(active, t)
		}
	}
	m.mu.Unlock()

	for _, t := range active {
		t.f()
	}
	return len(active)
}

func (m *manualTimers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func TestReportScheduler_DebounceCollapsesBurst(t *testing.T) {
	timers := &manualTimers{}
	var evaluations int
	var accessPoint, evaluatedWith string

	s := NewReportScheduler(context.Background(), 10*time.Second, func(context.Context) {
		evaluations++
		evaluatedWith = accessPoint
	}, WithAfterFunc(timers.AfterFunc))

	// ACT: five events inside the window, the network keeps changing
	for i := 1; i <= 5; i++ {
		accessPoint = fmt.Sprintf("aa:aa:aa:aa:aa:%02d", i)
		s.Trigger()
	}
	state, _ := s.State()
	require.Equal(t, StateScheduled, state)

	fired := timers.fireActive()

	// ASSERT
	assert.Equal(t, 1, fired, "only the last schedule survives")
	assert.Equal(t, 1, evaluations)
	assert.Equal(t, "aa:aa:aa:aa:aa:05", evaluatedWith, "evaluation reads state at fire time")
	for _, tm := range timers.timers {
		assert.Equal(t, 10*time.Second, tm.delay)
	}
	state, _ = s.State()
	assert.Equal(t, StateIdle, state)
}

func TestReportScheduler_FireAtMovesWithEachEvent(t *testing.T) {
	timers := &manualTimers{}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewReportScheduler(context.Background(), 0, func(context.Context) {},
		WithAfterFunc(timers.AfterFunc),
		WithClock(func() time.Time { return now }),
	)

	s.Trigger()
	_, first := s.State()
	now = now.Add(3 * time.Second)
	s.Trigger()
	_, second := s.State()

	assert.Equal(t, now.Add(DefaultDebounceDelay), second)
	assert.Equal(t, 3*time.Second, second.Sub(first))
}

func TestReportScheduler_StaleTimerIgnored(t *testing.T) {
	timers := &manualTimers{}
	evaluations := 0
	s := NewReportScheduler(context.Background(), time.Second, func(context.Context) { evaluations++ },
		WithAfterFunc(timers.AfterFunc))

	s.Trigger()
	stale := timers.timers[0]
	s.Trigger()

	// ACT: the replaced timer fires anyway, as if Stop lost the race
	stale.f()

	// ASSERT
	assert.Equal(t, 0, evaluations)
	state, _ := s.State()
	assert.Equal(t, StateScheduled, state)
}

func TestReportScheduler_FireDuringRunCoalesces(t *testing.T) {
	timers := &manualTimers{}
	evaluations := 0
	var s *ReportScheduler
	s = NewReportScheduler(context.Background(), time.Second, func(context.Context) {
		evaluations++
		if evaluations == 1 {
			state, _ := s.State()
			assert.Equal(t, StateRunning, state)

			// two events arrive and their schedule fires mid-run
			s.Trigger()
			s.Trigger()
			assert.Equal(t, 1, timers.fireActive())
		}
	}, WithAfterFunc(timers.AfterFunc))

	s.Trigger()
	timers.fireActive()

	assert.Equal(t, 2, evaluations, "one follow-up run, never concurrent")
	assert.Equal(t, 3, timers.count())
	state, _ := s.State()
	assert.Equal(t, StateIdle, state)
}

func TestReportScheduler_StopDropsPending(t *testing.T) {
	timers := &manualTimers{}
	evaluations := 0
	s := NewReportScheduler(context.Background(), time.Second, func(context.Context) { evaluations++ },
		WithAfterFunc(timers.AfterFunc))

	s.Trigger()
	s.Stop()
	s.Trigger()

	assert.Equal(t, 0, timers.fireActive())
	assert.Equal(t, 0, evaluations)
}

func TestReportScheduler_RealTimer(t *testing.T) {
	done := make(chan struct{}, 4)
	s := NewReportScheduler(context.Background(), 20*time.Millisecond, func(context.Context) {
		done <- struct{}{}
	})

	s.Trigger()
	s.Trigger()
	s.Trigger()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("evaluation did not run")
	}
	require.NoError(t, s.WaitIdle(context.Background()))

	select {
	case <-done:
		t.Fatal("burst must produce a single evaluation")
	case <-time.After(100 * time.Millisecond):
	}
}
