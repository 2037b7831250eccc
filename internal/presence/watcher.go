package presence

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultPollInterval    = 5 * time.Second
	DefaultRecheckInterval = 15 * time.Minute
)

// LinkProbe samples the current state of the watched network.
type LinkProbe interface {
	Probe(ctx context.Context) (ConnectivityEvent, error)
}

// Triggerer receives schedule-worthy events. ReportScheduler implements it.
type Triggerer interface {
	Trigger()
}

// InterfaceProbe reads link state of one network interface from the
// kernel. A missing or down interface is reported as lost. With a
// Resolver, the associated access point is part of NetworkID so roaming
// between access points shows up as a different network.
type InterfaceProbe struct {
	Interface string
	SysfsRoot string // defaults to /sys/class/net
	Resolver  AccessPointResolver
}

func (p InterfaceProbe) Probe(ctx context.Context) (ConnectivityEvent, error) {
	ev := ConnectivityEvent{NetworkID: p.Interface}

	iface, err := net.InterfaceByName(p.Interface)
	if err != nil {
		ev.Lost = true
		return ev, nil
	}
	if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagRunning == 0 {
		ev.Lost = true
		return ev, nil
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return ev, fmt.Errorf("failed to read addresses of %s: %w", p.Interface, err)
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.IsGlobalUnicast() {
			ev.HasInternet = true
			break
		}
	}

	root := p.SysfsRoot
	if root == "" {
		root = "/sys/class/net"
	}
	if _, err := os.Stat(filepath.Join(root, p.Interface, "wireless")); err == nil {
		ev.HasWireless = true
	}
	ev.HasCellular = strings.HasPrefix(p.Interface, "wwan")
	ev.IsValidated = ev.HasInternet

	if p.Resolver != nil {
		if ap, ok := p.Resolver.Resolve(ctx); ok {
			ev.NetworkID = p.Interface + "@" + ap
		}
	}
	return ev, nil
}

// Watcher polls a LinkProbe, filters the observations and triggers the
// scheduler. It also triggers on a fixed recheck interval so a schedule
// lost to a restart is recovered.
type Watcher struct {
	probe   LinkProbe
	filter  *EventFilter
	target  Triggerer
	poll    time.Duration
	recheck time.Duration
	logger  *slog.Logger

	last    ConnectivityEvent
	hasLast bool
}

func NewWatcher(probe LinkProbe, target Triggerer, poll, recheck time.Duration, logger *slog.Logger) *Watcher {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if recheck <= 0 {
		recheck = DefaultRecheckInterval
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{
		probe:   probe,
		filter:  NewEventFilter(),
		target:  target,
		poll:    poll,
		recheck: recheck,
		logger:  logger,
	}
}

// Run observes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	pollTicker := time.NewTicker(w.poll)
	defer pollTicker.Stop()
	recheckTicker := time.NewTicker(w.recheck)
	defer recheckTicker.Stop()

	w.Observe(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pollTicker.C:
			w.Observe(ctx)
		case <-recheckTicker.C:
			w.logger.Debug("periodic presence recheck")
			w.target.Trigger()
		}
	}
}

// Observe takes one sample and triggers when it is a significant change
// from the previous one.
func (w *Watcher) Observe(ctx context.Context) {
	ev, err := w.probe.Probe(ctx)
	if err != nil {
		w.logger.Warn("connectivity probe failed", "error", err)
		return
	}
	if w.hasLast && ev == w.last {
		return
	}
	prev, hadPrev := w.last, w.hasLast
	w.last, w.hasLast = ev, true

	// A new network id replaces the previous network, which is gone.
	switched := hadPrev && !prev.Lost && prev.NetworkID != ev.NetworkID
	if switched {
		w.filter.Significant(ConnectivityEvent{NetworkID: prev.NetworkID, Lost: true})
	}

	if w.filter.Significant(ev) || switched {
		w.logger.Info("connectivity changed",
			"network", ev.NetworkID,
			"lost", ev.Lost,
			"wireless", ev.HasWireless,
			"internet", ev.HasInternet,
		)
		w.target.Trigger()
	}
}
