package main

import (
	"context"
	"errors"
	"time"
)

const (
	evaluationLease    = "evaluation"
	evaluationLeaseTTL = 30 * time.Second
)

var errAgentRunning = errors.New("agent run is active on this data dir and reports changes itself")

// holdEvaluationLease takes the evaluation lease and keeps renewing it
// until release is called or ctx is done. With wait it retries until the
// lease frees up; otherwise a held lease fails with errAgentRunning.
func (a *agent) holdEvaluationLease(ctx context.Context, wait bool) (release func(), err error) {
	for {
		ok, err := a.leases.Acquire(ctx, evaluationLease, a.holder, evaluationLeaseTTL)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if !wait {
			return nil, errAgentRunning
		}
		a.logger.Info("waiting for another agent process to finish its evaluation")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	renewCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(evaluationLeaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				ok, err := a.leases.Acquire(renewCtx, evaluationLease, a.holder, evaluationLeaseTTL)
				if err != nil {
					a.logger.Warn("evaluation lease renewal failed", "error", err)
				} else if !ok {
					a.logger.Error("evaluation lease lost to another process")
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
		releaseCtx, cancelRelease := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelRelease()
		if err := a.leases.Release(releaseCtx, evaluationLease, a.holder); err != nil {
			a.logger.Warn("releasing evaluation lease failed", "error", err)
		}
	}, nil
}
