package presence

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type scriptedProbe struct {
	mu     sync.Mutex
	events []ConnectivityEvent
	err    error
}

func (p *scriptedProbe) Probe(context.Context) (ConnectivityEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return ConnectivityEvent{}, p.err
	}
	ev := p.events[0]
	if len(p.events) > 1 {
		p.events = p.events[1:]
	}
	return ev, nil
}

type countingTrigger struct {
	mu sync.Mutex
	n  int
}

func (c *countingTrigger) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *countingTrigger) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestWatcher_ObserveTriggersOnSignificantChanges(t *testing.T) {
	up := ConnectivityEvent{NetworkID: "wlan0", HasWireless: true, HasInternet: true}
	validated := up
	validated.IsValidated = true
	lost := ConnectivityEvent{NetworkID: "wlan0", Lost: true}

	probe := &scriptedProbe{events: []ConnectivityEvent{up, up, validated, lost, lost, up}}
	trigger := &countingTrigger{}
	w := NewWatcher(probe, trigger, time.Hour, time.Hour, nil)
	ctx := context.Background()

	// ACT
	for i := 0; i < 6; i++ {
		w.Observe(ctx)
	}

	// ASSERT: up, lost, up again
	assert.Equal(t, 3, trigger.count())
}

func TestWatcher_AccessPointChangeBetweenPolls(t *testing.T) {
	office := ConnectivityEvent{NetworkID: "wlan0@aa:bb:cc:dd:ee:ff", HasWireless: true, HasInternet: true}
	lobby := office
	lobby.NetworkID = "wlan0@11:22:33:44:55:66"
	associating := ConnectivityEvent{NetworkID: "wlan0", HasWireless: true}

	// ARRANGE: roam with identical link flags, roam back, then drop to an
	// interface without an association
	probe := &scriptedProbe{events: []ConnectivityEvent{office, lobby, lobby, office, associating}}
	trigger := &countingTrigger{}
	w := NewWatcher(probe, trigger, time.Hour, time.Hour, nil)
	ctx := context.Background()

	// ACT
	for i := 0; i < 5; i++ {
		w.Observe(ctx)
	}

	// ASSERT: every switch triggers, the repeated sample does not
	assert.Equal(t, 4, trigger.count())
}

func TestWatcher_ProbeErrorDoesNotTrigger(t *testing.T) {
	probe := &scriptedProbe{err: errors.New("netlink: permission denied")}
	trigger := &countingTrigger{}
	w := NewWatcher(probe, trigger, time.Hour, time.Hour, nil)

	w.Observe(context.Background())

	assert.Equal(t, 0, trigger.count())
}

func TestWatcher_RunRechecksPeriodically(t *testing.T) {
	probe := &scriptedProbe{events: []ConnectivityEvent{{NetworkID: "eth0"}}}
	trigger := &countingTrigger{}
	w := NewWatcher(probe, trigger, time.Hour, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool { return trigger.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestInterfaceProbe_MissingInterfaceIsLost(t *testing.T) {
	ev, err := InterfaceProbe{Interface: "does-not-exist0"}.Probe(context.Background())

	assert.NoError(t, err)
	assert.True(t, ev.Lost)
}

func TestInterfaceProbe_NetworkIDIncludesAccessPoint(t *testing.T) {
	iface, err := net.InterfaceByName("lo")
	if err != nil || iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagRunning == 0 {
		t.Skip("loopback interface not available")
	}

	ev, err := InterfaceProbe{Interface: "lo", Resolver: StaticResolver("AA:BB:CC:DD:EE:FF")}.Probe(context.Background())
	assert.NoError(t, err)
	assert.False(t, ev.Lost)
	assert.Equal(t, "lo@aa:bb:cc:dd:ee:ff", ev.NetworkID)

	ev, err = InterfaceProbe{Interface: "lo", Resolver: StaticResolver("")}.Probe(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "lo", ev.NetworkID)
}
