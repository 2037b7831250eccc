package presence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/metrics"
	"github.com/prudhvinik1/homepresence/internal/models"
)

// IdentityProvider returns the signed-in user, or ErrUnauthenticated.
type IdentityProvider interface {
	CurrentUserID(ctx context.Context) (uuid.UUID, error)
}

// BindingSource lists the signed-in user's location bindings.
type BindingSource interface {
	ListBindings(ctx context.Context) ([]*models.LocationBinding, error)
}

// StatusWriter overwrites the user's shared status record.
type StatusWriter interface {
	WriteStatus(ctx context.Context, record *models.StatusRecord) error
}

type ReportResult int

const (
	ResultSent ReportResult = iota
	ResultSkipped
	ResultFailed
)

func (r ReportResult) String() string {
	switch r {
	case ResultSent:
		return "sent"
	case ResultSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// ReportOutcome is the result of one evaluation. Reason is set only for
// ResultFailed and matches ErrUnauthenticated, ErrStoreRead or
// ErrStoreWrite.
type ReportOutcome struct {
	Result ReportResult
	State  models.PresenceState
	Reason error
}

func failed(reason error) ReportOutcome {
	return ReportOutcome{Result: ResultFailed, Reason: reason}
}

const DefaultReportTimeout = 30 * time.Second

// Reporter evaluates the current presence and writes it to the shared
// store when it differs from what was last reported.
type Reporter struct {
	identity  IdentityProvider
	resolver  AccessPointResolver
	bindings  BindingSource
	snapshots *SnapshotStore
	writer    StatusWriter
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

type ReporterOption func(*Reporter)

func WithReportTimeout(d time.Duration) ReporterOption {
	return func(r *Reporter) { r.timeout = d }
}

func WithReporterClock(now func() time.Time) ReporterOption {
	return func(r *Reporter) { r.now = now }
}

func NewReporter(
	identity IdentityProvider,
	resolver AccessPointResolver,
	bindings BindingSource,
	snapshots *SnapshotStore,
	writer StatusWriter,
	logger *slog.Logger,
	opts ...ReporterOption,
) *Reporter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Reporter{
		identity:  identity,
		resolver:  resolver,
		bindings:  bindings,
		snapshots: snapshots,
		writer:    writer,
		timeout:   DefaultReportTimeout,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReportIfChanged runs one evaluation. The remote write is the only
// mutation outside the device; the local snapshot moves forward only
// after it succeeds.
func (r *Reporter) ReportIfChanged(ctx context.Context) ReportOutcome {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	outcome := r.report(ctx)
	metrics.ObserveReport(outcome.Result.String())

	logger := r.logger.With("outcome", outcome.Result.String(), "state", outcome.State.Kind.String())
	switch outcome.Result {
	case ResultFailed:
		logger.Warn("presence report failed", "error", outcome.Reason)
	case ResultSent:
		logger.Info("presence reported", "access_point", outcome.State.AccessPointID, "location", outcome.State.Name)
	default:
		logger.Debug("presence unchanged")
	}
	return outcome
}

func (r *Reporter) report(ctx context.Context) ReportOutcome {
	userID, err := r.identity.CurrentUserID(ctx)
	if err != nil {
		return failed(classify(ErrStoreRead, err))
	}

	accessPoint, _ := r.resolver.Resolve(ctx)

	bindings, err := r.bindings.ListBindings(ctx)
	if err != nil {
		return failed(classify(ErrStoreRead, err))
	}
	state := Evaluate(accessPoint, bindings)

	last, err := r.snapshots.Load(ctx)
	if err != nil {
		return failed(classify(ErrStoreRead, err))
	}

	now := r.now()
	if !HasChanged(state, last) {
		confirmed := *last
		confirmed.CapturedAtEpochMillis = now.UnixMilli()
		if err := r.snapshots.Save(ctx, &confirmed); err != nil {
			r.logger.Warn("failed to confirm snapshot", "error", err)
		}
		return ReportOutcome{Result: ResultSkipped, State: state}
	}

	if err := r.writer.WriteStatus(ctx, state.StatusRecord(userID)); err != nil {
		return ReportOutcome{Result: ResultFailed, State: state, Reason: classify(ErrStoreWrite, err)}
	}

	if err := r.snapshots.Save(ctx, state.Snapshot(now)); err != nil {
		// the next evaluation repeats an identical write, which the
		// fan-out ignores
		r.logger.Warn("failed to persist snapshot", "error", err)
	}
	return ReportOutcome{Result: ResultSent, State: state}
}

func classify(kind, err error) error {
	if errors.Is(err, ErrUnauthenticated) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
