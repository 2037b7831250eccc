package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prudhvinik1/homepresence/internal/database"
	"github.com/prudhvinik1/homepresence/internal/metrics"
	"github.com/prudhvinik1/homepresence/internal/presence"
	"github.com/prudhvinik1/homepresence/internal/statuscache"
)

func (a *agent) reporter() (*presence.Reporter, error) {
	resolver, err := a.resolver()
	if err != nil {
		return nil, err
	}
	return presence.NewReporter(a.creds, resolver, a.client, presence.NewSnapshotStore(a.kv), a.client, a.logger), nil
}

// runAgent wires probe, watcher, scheduler and reporter and, when NATS is
// configured, the friend status receiver. It returns when ctx is done.
func runAgent(ctx context.Context, a *agent, _ []string) error {
	reporter, err := a.reporter()
	if err != nil {
		return err
	}

	// One evaluating process per data dir; the lease is held until exit.
	release, err := a.holdEvaluationLease(ctx, true)
	if err != nil {
		return err
	}
	defer release()

	scheduler := presence.NewReportScheduler(ctx, a.cfg.DebounceDelay, func(ctx context.Context) {
		reporter.ReportIfChanged(ctx)
	})
	defer scheduler.Stop()

	if a.cfg.NATSURL != "" {
		receiver, err := a.startReceiver(ctx)
		if err != nil {
			return err
		}
		defer receiver.Stop()
	}

	if a.cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics listener failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	resolver, err := a.resolver()
	if err != nil {
		return err
	}
	probe := presence.InterfaceProbe{Interface: a.cfg.Interface, Resolver: resolver}
	watcher := presence.NewWatcher(probe, scheduler, a.cfg.PollInterval, a.cfg.RecheckInterval, a.logger)

	a.logger.Info("agent started", "interface", a.cfg.Interface, "server", a.cfg.ServerURL, "debounce", a.cfg.DebounceDelay)
	scheduler.Trigger()
	if err := watcher.Run(ctx); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := scheduler.WaitIdle(waitCtx); err != nil {
		a.logger.Warn("evaluation still running at shutdown", "error", err)
	}
	a.logger.Info("agent stopped")
	return nil
}

// startReceiver registers this device's push token, subscribes to its
// subject and seeds the cache with statuses missed while offline.
func (a *agent) startReceiver(ctx context.Context) (*statuscache.Receiver, error) {
	token, err := statuscache.DeviceToken(ctx, a.kv)
	if err != nil {
		return nil, err
	}

	conn, err := database.NewNATSConnection(a.cfg.NATSURL, "homepresence-agent", a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	context.AfterFunc(ctx, func() { _ = conn.Drain() })

	receiver := statuscache.NewReceiver(conn, token, a.friends, a.logger)
	if err := receiver.Start(ctx); err != nil {
		return nil, err
	}

	if err := a.client.RegisterPushToken(ctx, token); err != nil {
		a.logger.Warn("push token registration failed", "error", err)
	}
	records, err := a.client.FriendStatuses(ctx)
	if err != nil {
		a.logger.Warn("friend status refresh failed", "error", err)
		return receiver, nil
	}
	if err := a.friends.Seed(ctx, records); err != nil {
		a.logger.Warn("friend status seed failed", "error", err)
	}
	return receiver, nil
}
