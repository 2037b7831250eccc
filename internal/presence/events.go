package presence

import "sync"

// ConnectivityEvent is one observation from the connectivity source.
// Lost marks the network going away; the other flags describe it while
// it is up.
type ConnectivityEvent struct {
	NetworkID   string
	HasWireless bool
	HasCellular bool
	HasInternet bool
	IsValidated bool
	Lost        bool
}

func (e ConnectivityEvent) usable() bool {
	return (e.HasWireless || e.HasCellular) && e.HasInternet
}

type linkState struct {
	wireless bool
	cellular bool
	internet bool
}

// EventFilter passes the events worth a presence evaluation: a network
// becoming usable over wireless or cellular, a usable network changing
// transport or losing internet, and a network being lost. Changes that
// only touch validation are dropped.
type EventFilter struct {
	mu       sync.Mutex
	networks map[string]linkState
}

func NewEventFilter() *EventFilter {
	return &EventFilter{networks: make(map[string]linkState)}
}

func (f *EventFilter) Significant(ev ConnectivityEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ev.Lost {
		delete(f.networks, ev.NetworkID)
		return true
	}

	cur := linkState{wireless: ev.HasWireless, cellular: ev.HasCellular, internet: ev.HasInternet}
	prev, known := f.networks[ev.NetworkID]
	f.networks[ev.NetworkID] = cur

	if !known {
		return ev.usable()
	}
	if prev == cur {
		return false
	}
	prevUsable := (prev.wireless || prev.cellular) && prev.internet
	return prevUsable || ev.usable()
}
