package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	readErr error
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, false, m.readErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type fakeIdentity struct {
	id  uuid.UUID
	err error
}

func (f fakeIdentity) CurrentUserID(context.Context) (uuid.UUID, error) {
	return f.id, f.err
}

type fakeBindings struct {
	bindings []*models.LocationBinding
	err      error
}

func (f *fakeBindings) ListBindings(context.Context) ([]*models.LocationBinding, error) {
	return f.bindings, f.err
}

type fakeWriter struct {
	mu      sync.Mutex
	records []*models.StatusRecord
	err     error
}

func (f *fakeWriter) WriteStatus(_ context.Context, record *models.StatusRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

type mutableResolver struct {
	mu sync.Mutex
	id string
}

func (r *mutableResolver) set(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = id
}

func (r *mutableResolver) Resolve(context.Context) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id, r.id != ""
}

type reporterFixture struct {
	user     uuid.UUID
	kv       *memKV
	resolver *mutableResolver
	bindings *fakeBindings
	writer   *fakeWriter
	reporter *Reporter
	now      time.Time
}

func newReporterFixture() *reporterFixture {
	f := &reporterFixture{
		user:     uuid.New(),
		kv:       newMemKV(),
		resolver: &mutableResolver{},
		bindings: &fakeBindings{bindings: []*models.LocationBinding{
			{AccessPointID: "aa:bb:cc:dd:ee:01", DisplayName: "Home", IconID: "ic_home", ColorHex: "#00FF00"},
			{AccessPointID: "aa:bb:cc:dd:ee:02", DisplayName: "Office"},
		}},
		writer: &fakeWriter{},
		now:    time.UnixMilli(1_700_000_000_000),
	}
	f.reporter = NewReporter(
		fakeIdentity{id: f.user},
		f.resolver,
		f.bindings,
		NewSnapshotStore(f.kv),
		f.writer,
		nil,
		WithReporterClock(func() time.Time { return f.now }),
	)
	return f
}

func TestReporter_Idempotence(t *testing.T) {
	f := newReporterFixture()
	ctx := context.Background()
	f.resolver.set("aa:bb:cc:dd:ee:01")

	// ACT: the same state evaluated repeatedly
	first := f.reporter.ReportIfChanged(ctx)
	var later []ReportResult
	for i := 0; i < 4; i++ {
		f.now = f.now.Add(time.Minute)
		later = append(later, f.reporter.ReportIfChanged(ctx).Result)
	}

	// ASSERT
	assert.Equal(t, ResultSent, first.Result)
	assert.Equal(t, []ReportResult{ResultSkipped, ResultSkipped, ResultSkipped, ResultSkipped}, later)
	require.Len(t, f.writer.records, 1, "exactly one remote write")

	snapshot, err := NewSnapshotStore(f.kv).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.now.UnixMilli(), snapshot.CapturedAtEpochMillis, "skip confirms the snapshot timestamp")
}

func TestReporter_WritesFullRecord(t *testing.T) {
	f := newReporterFixture()
	ctx := context.Background()

	f.resolver.set("AA:BB:CC:DD:EE:02")
	require.Equal(t, ResultSent, f.reporter.ReportIfChanged(ctx).Result)
	f.resolver.set("11:22:33:44:55:66")
	require.Equal(t, ResultSent, f.reporter.ReportIfChanged(ctx).Result)
	f.resolver.set("")
	require.Equal(t, ResultSent, f.reporter.ReportIfChanged(ctx).Result)

	require.Len(t, f.writer.records, 3)

	office := f.writer.records[0]
	assert.Equal(t, f.user, office.OwnerID)
	assert.Equal(t, "Office", *office.LocationName)
	assert.True(t, office.IsAtKnownLocation)
	assert.Equal(t, models.DefaultIconID, *office.IconID)

	unknown := f.writer.records[1]
	assert.Nil(t, unknown.LocationName)
	assert.Equal(t, "11:22:33:44:55:66", *unknown.AccessPointID)
	assert.False(t, unknown.IsAtKnownLocation)

	offline := f.writer.records[2]
	assert.Nil(t, offline.AccessPointID)
	assert.Equal(t, models.OfflineIconID, *offline.IconID)
	assert.Equal(t, models.OfflineColorHex, *offline.ColorHex)
}

func TestReporter_Unauthenticated(t *testing.T) {
	f := newReporterFixture()
	f.reporter.identity = fakeIdentity{err: ErrUnauthenticated}

	outcome := f.reporter.ReportIfChanged(context.Background())

	assert.Equal(t, ResultFailed, outcome.Result)
	assert.ErrorIs(t, outcome.Reason, ErrUnauthenticated)
	assert.NotErrorIs(t, outcome.Reason, ErrRetryable)
	assert.Empty(t, f.writer.records)
}

func TestReporter_PermissionDeniedReportsOffline(t *testing.T) {
	f := newReporterFixture()
	r, err := NewCommandResolver("", "wlan0", nil, WithPermissionCheck(func() bool { return false }))
	require.NoError(t, err)
	f.reporter.resolver = r

	outcome := f.reporter.ReportIfChanged(context.Background())

	assert.Equal(t, ResultSent, outcome.Result)
	assert.Equal(t, models.PresenceOffline, outcome.State.Kind)
}

func TestReporter_BindingReadFailure(t *testing.T) {
	f := newReporterFixture()
	f.resolver.set("aa:bb:cc:dd:ee:01")
	f.bindings.err = errors.New("connection reset")

	outcome := f.reporter.ReportIfChanged(context.Background())

	assert.Equal(t, ResultFailed, outcome.Result)
	assert.ErrorIs(t, outcome.Reason, ErrStoreRead)
	assert.ErrorIs(t, outcome.Reason, ErrRetryable)
	assert.Empty(t, f.writer.records)
}

func TestReporter_SnapshotReadFailure(t *testing.T) {
	f := newReporterFixture()
	f.kv.readErr = errors.New("disk I/O error")

	outcome := f.reporter.ReportIfChanged(context.Background())

	assert.ErrorIs(t, outcome.Reason, ErrStoreRead)
	assert.Empty(t, f.writer.records)
}

func TestReporter_WriteFailureLeavesSnapshotForRetry(t *testing.T) {
	f := newReporterFixture()
	ctx := context.Background()
	f.resolver.set("aa:bb:cc:dd:ee:01")
	f.writer.err = errors.New("503 service unavailable")

	// ACT: write fails
	outcome := f.reporter.ReportIfChanged(ctx)

	// ASSERT
	assert.Equal(t, ResultFailed, outcome.Result)
	assert.ErrorIs(t, outcome.Reason, ErrStoreWrite)
	snapshot, err := NewSnapshotStore(f.kv).Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snapshot, "snapshot untouched after failed write")

	// ACT: the next cycle recomputes the same diff and retries
	f.writer.err = nil
	outcome = f.reporter.ReportIfChanged(ctx)

	assert.Equal(t, ResultSent, outcome.Result)
	require.Len(t, f.writer.records, 1)
	assert.Equal(t, "Home", *f.writer.records[0].LocationName)
}

func TestReporter_UnauthorizedWriteIsNotRetryable(t *testing.T) {
	f := newReporterFixture()
	f.resolver.set("aa:bb:cc:dd:ee:01")
	f.writer.err = ErrUnauthenticated

	outcome := f.reporter.ReportIfChanged(context.Background())

	assert.ErrorIs(t, outcome.Reason, ErrUnauthenticated)
	assert.NotErrorIs(t, outcome.Reason, ErrRetryable)
}

func TestReporter_SchedulerDrivesReporter(t *testing.T) {
	f := newReporterFixture()
	timers := &manualTimers{}
	var outcomes []ReportOutcome
	s := NewReportScheduler(context.Background(), DefaultDebounceDelay, func(ctx context.Context) {
		outcomes = append(outcomes, f.reporter.ReportIfChanged(ctx))
	}, WithAfterFunc(timers.AfterFunc))

	// ACT: flapping between networks inside one window
	f.resolver.set("11:22:33:44:55:66")
	s.Trigger()
	f.resolver.set("")
	s.Trigger()
	f.resolver.set("aa:bb:cc:dd:ee:01")
	s.Trigger()
	timers.fireActive()

	// ASSERT
	require.Len(t, outcomes, 1)
	require.Len(t, f.writer.records, 1)
	assert.Equal(t, "Home", *f.writer.records[0].LocationName)
}
