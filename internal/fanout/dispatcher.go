// Package fanout delivers status changes to the owner's accepted friends.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/metrics"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/push"
	"github.com/prudhvinik1/homepresence/internal/repositories"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize   = push.MaxMulticastTokens
	DefaultParallelism = 4
)

// ErrDispatchFailed means no chunk could be handed to the transport.
var ErrDispatchFailed = errors.New("fan-out dispatch failed")

// InvalidTokenHandler receives targets the transport reported as
// permanently invalid. DeviceRepository implements it.
type InvalidTokenHandler interface {
	ClearPushToken(ctx context.Context, token string) error
}

// Result summarizes one Handle call.
type Result struct {
	Friends       int
	Targets       int
	Success       int
	Failure       int
	InvalidTokens []string
}

type Dispatcher struct {
	friendships repositories.FriendshipReader
	targets     repositories.PushTargetReader
	sender      push.MulticastSender
	invalid     InvalidTokenHandler
	batchSize   int
	parallelism int
	now         func() time.Time
	logger      *slog.Logger
}

type Option func(*Dispatcher)

// WithBatchSize caps tokens per multicast call. Values above
// push.MaxMulticastTokens are clamped.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = min(n, push.MaxMulticastTokens)
		}
	}
}

// WithParallelism bounds concurrent target lookups and multicast calls.
func WithParallelism(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.parallelism = n
		}
	}
}

func WithInvalidTokenHandler(h InvalidTokenHandler) Option {
	return func(d *Dispatcher) { d.invalid = h }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(
	friendships repositories.FriendshipReader,
	targets repositories.PushTargetReader,
	sender push.MulticastSender,
	logger *slog.Logger,
	opts ...Option,
) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	d := &Dispatcher{
		friendships: friendships,
		targets:     targets,
		sender:      sender,
		batchSize:   DefaultBatchSize,
		parallelism: DefaultParallelism,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle fans one status write out to the owner's accepted friends.
// Per-target failures are counted and logged, never retried. The error is
// non-nil only when the change could not be delivered at all.
func (d *Dispatcher) Handle(ctx context.Context, change models.StatusChange) (Result, error) {
	start := time.Now()
	var result Result
	logger := d.logger.With("user_id", change.OwnerID)

	if change.After == nil {
		logger.Debug("status record deleted, nothing to fan out")
		metrics.ObserveFanout(metrics.FanoutNoop, start)
		return result, nil
	}
	if change.Before != nil && change.Before.SameContent(change.After) {
		logger.Debug("status content unchanged, nothing to fan out")
		metrics.ObserveFanout(metrics.FanoutNoop, start)
		return result, nil
	}

	friends, err := d.acceptedFriends(ctx, change.OwnerID)
	if err != nil {
		metrics.ObserveFanout(metrics.FanoutTransportKO, start)
		return result, err
	}
	result.Friends = len(friends)
	if len(friends) == 0 {
		metrics.ObserveFanout(metrics.FanoutNoFriends, start)
		return result, nil
	}

	tokens, err := d.resolveTargets(ctx, logger, friends)
	if err != nil {
		metrics.ObserveFanout(metrics.FanoutTransportKO, start)
		return result, err
	}
	result.Targets = len(tokens)
	if len(tokens) == 0 {
		logger.Info("no friend has a push target", "friends", len(friends))
		metrics.ObserveFanout(metrics.FanoutNoTargets, start)
		return result, nil
	}

	payload := BuildPayload(change.After, d.now()).Data()
	err = d.send(ctx, logger, payload, tokens, &result)
	metrics.ObservePushDeliveries(result.Success, result.Failure)
	if err != nil {
		logger.Error("fan-out transport failure", "targets", result.Targets, "error", err)
		metrics.ObserveFanout(metrics.FanoutTransportKO, start)
		return result, err
	}

	d.cleanup(ctx, logger, result.InvalidTokens)
	logger.Info("fan-out complete",
		"friends", result.Friends,
		"targets", result.Targets,
		"success", result.Success,
		"failure", result.Failure,
	)
	metrics.ObserveFanout(metrics.FanoutDispatched, start)
	return result, nil
}

// acceptedFriends returns the other participant of each accepted edge,
// counting every edge once.
func (d *Dispatcher) acceptedFriends(ctx context.Context, owner uuid.UUID) ([]uuid.UUID, error) {
	edges, err := d.friendships.ListAccepted(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list friendships: %w", err)
	}

	seenEdges := make(map[uuid.UUID]bool, len(edges))
	seenFriends := make(map[uuid.UUID]bool, len(edges))
	friends := make([]uuid.UUID, 0, len(edges))
	for _, edge := range edges {
		if edge.Status != models.FriendshipAccepted || seenEdges[edge.ID] {
			continue
		}
		seenEdges[edge.ID] = true

		other, ok := edge.Other(owner)
		if !ok || seenFriends[other] {
			continue
		}
		seenFriends[other] = true
		friends = append(friends, other)
	}
	return friends, nil
}

func (d *Dispatcher) resolveTargets(ctx context.Context, logger *slog.Logger, friends []uuid.UUID) ([]string, error) {
	tokens := make([]string, len(friends))
	lookupFailed := make([]bool, len(friends))

	// A failed lookup skips that friend only.
	var g errgroup.Group
	g.SetLimit(d.parallelism)
	for i, friend := range friends {
		g.Go(func() error {
			token, err := d.targets.GetPushTarget(ctx, friend)
			if err != nil {
				logger.Warn("failed to get push target, skipping", "friend_id", friend, "error", err)
				lookupFailed[i] = true
				return nil
			}
			tokens[i] = token
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to resolve push targets: %w", err)
	}

	seen := make(map[string]bool, len(tokens))
	valid := tokens[:0]
	for i, token := range tokens {
		if token == "" {
			if lookupFailed[i] {
				continue
			}
			logger.Info("friend has no push target, skipping", "friend_id", friends[i])
			continue
		}
		if seen[token] {
			continue
		}
		seen[token] = true
		valid = append(valid, token)
	}
	return valid, nil
}

// send dispatches tokens in chunks with bounded parallelism. It fails
// only when every chunk failed at the transport level.
func (d *Dispatcher) send(ctx context.Context, logger *slog.Logger, data map[string]string, tokens []string, result *Result) error {
	chunks := chunk(tokens, d.batchSize)

	var (
		mu        sync.Mutex
		failedErr error
		failed    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism)
	for _, batch := range chunks {
		g.Go(func() error {
			resp, err := d.sender.SendEachForMulticast(gctx, &push.MulticastMessage{Data: data, Tokens: batch})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				failedErr = errors.Join(failedErr, err)
				result.Failure += len(batch)
				logger.Warn("multicast chunk failed", "targets", len(batch), "error", err)
				return nil
			}
			result.Success += resp.SuccessCount
			result.Failure += resp.FailureCount
			for _, r := range resp.Responses {
				if r.Success() {
					continue
				}
				logger.Warn("push delivery failed", "target", redact(r.Token), "error", r.Error)
				if push.IsPermanent(r.Error) {
					result.InvalidTokens = append(result.InvalidTokens, r.Token)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed == len(chunks) {
		return fmt.Errorf("%w: %w", ErrDispatchFailed, failedErr)
	}
	return nil
}

func (d *Dispatcher) cleanup(ctx context.Context, logger *slog.Logger, tokens []string) {
	if d.invalid == nil {
		return
	}
	for _, token := range tokens {
		if err := d.invalid.ClearPushToken(ctx, token); err != nil {
			logger.Warn("failed to clear invalid push target", "target", redact(token), "error", err)
		}
	}
}

func chunk(tokens []string, size int) [][]string {
	var chunks [][]string
	for size < len(tokens) {
		tokens, chunks = tokens[size:], append(chunks, tokens[:size:size])
	}
	return append(chunks, tokens)
}

// redact keeps enough of a token to correlate log lines.
func redact(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
