package fanout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/push"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFriendships struct {
	edges []*models.Friendship
	err   error
}

func (f *fakeFriendships) add(a, b uuid.UUID, status models.FriendshipStatus) *models.Friendship {
	edge := models.NewFriendship(a, b)
	edge.ID = uuid.New()
	edge.Status = status
	f.edges = append(f.edges, edge)
	return edge
}

// ListAccepted filters like the Postgres query does.
func (f *fakeFriendships) ListAccepted(_ context.Context, accountID uuid.UUID) ([]*models.Friendship, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Friendship
	for _, e := range f.edges {
		if e.Involves(accountID) && e.Status == models.FriendshipAccepted {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeTargets map[uuid.UUID]string

func (f fakeTargets) GetPushTarget(_ context.Context, accountID uuid.UUID) (string, error) {
	return f[accountID], nil
}

// recordingSender fails tokens listed in failures and records every call.
type recordingSender struct {
	mu       sync.Mutex
	calls    [][]string
	data     []map[string]string
	failures map[string]error
	callErr  error
}

func (s *recordingSender) SendEachForMulticast(_ context.Context, msg *push.MulticastMessage) (*push.BatchResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]string(nil), msg.Tokens...))
	s.data = append(s.data, msg.Data)
	if s.callErr != nil {
		return nil, s.callErr
	}

	batch := &push.BatchResponse{}
	for _, token := range msg.Tokens {
		r := push.SendResponse{Token: token, Error: s.failures[token]}
		if r.Error == nil {
			batch.SuccessCount++
		} else {
			batch.FailureCount++
		}
		batch.Responses = append(batch.Responses, r)
	}
	return batch, nil
}

func (s *recordingSender) allTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		out = append(out, c...)
	}
	sort.Strings(out)
	return out
}

type recordingCleanup struct {
	mu     sync.Mutex
	tokens []string
}

func (c *recordingCleanup) ClearPushToken(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = append(c.tokens, token)
	return nil
}

func officeRecord(owner uuid.UUID) *models.StatusRecord {
	return &models.StatusRecord{
		OwnerID:           owner,
		LocationName:      models.StringPtr("Office"),
		AccessPointID:     models.StringPtr("aa:bb:cc:dd:ee:ff"),
		IsAtKnownLocation: true,
		IconID:            models.StringPtr("ic_work"),
		ColorHex:          models.StringPtr("#0000FF"),
		Version:           1,
		UpdatedAt:         time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestDispatcher_OnlyAcceptedFriends(t *testing.T) {
	owner := uuid.New()
	friendships := &fakeFriendships{}
	targets := fakeTargets{}

	// ARRANGE: three accepted friends, one pending
	for i := 0; i < 3; i++ {
		friend := uuid.New()
		friendships.add(owner, friend, models.FriendshipAccepted)
		targets[friend] = fmt.Sprintf("token-accepted-%d", i)
	}
	pending := uuid.New()
	friendships.add(pending, owner, models.FriendshipPending)
	targets[pending] = "token-pending"

	sender := &recordingSender{}
	d := NewDispatcher(friendships, targets, sender, nil)

	// ACT
	result, err := d.Handle(context.Background(), models.StatusChange{OwnerID: owner, After: officeRecord(owner)})

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, 3, result.Friends)
	assert.Equal(t, 3, result.Success)
	assert.Equal(t, []string{"token-accepted-0", "token-accepted-1", "token-accepted-2"}, sender.allTokens())
	assert.NotContains(t, sender.allTokens(), "token-pending")
	assert.Len(t, sender.calls, 1, "one multicast call")
}

func TestDispatcher_PartialFailureIsolation(t *testing.T) {
	owner := uuid.New()
	friendships := &fakeFriendships{}
	targets := fakeTargets{}
	for i := 1; i <= 5; i++ {
		friend := uuid.New()
		friendships.add(owner, friend, models.FriendshipAccepted)
		targets[friend] = fmt.Sprintf("token-%d", i)
	}
	sender := &recordingSender{failures: map[string]error{
		"token-3": fmt.Errorf("%w: http 503", push.ErrTransient),
	}}
	cleanup := &recordingCleanup{}
	d := NewDispatcher(friendships, targets, sender, nil, WithInvalidTokenHandler(cleanup))

	result, err := d.Handle(context.Background(), models.StatusChange{OwnerID: owner, After: officeRecord(owner)})

	require.NoError(t, err)
	assert.Equal(t, 4, result.Success)
	assert.Equal(t, 1, result.Failure)
	assert.Len(t, sender.allTokens(), 5, "failed target is not retried")
	assert.Empty(t, cleanup.tokens, "transient failures keep the target")
}

func TestDispatcher_PermanentFailureSignalsCleanup(t *testing.T) {
	owner := uuid.New()
	friendships := &fakeFriendships{}
	targets := fakeTargets{}
	for _, token := range []string{"good", "gone", "garbled"} {
		friend := uuid.New()
		friendships.add(owner, friend, models.FriendshipAccepted)
		targets[friend] = token
	}
	sender := &recordingSender{failures: map[string]error{
		"gone":    push.ErrUnregistered,
		"garbled": push.ErrInvalidToken,
	}}
	cleanup := &recordingCleanup{}
	d := NewDispatcher(friendships, targets, sender, nil, WithInvalidTokenHandler(cleanup))

	result, err := d.Handle(context.Background(), models.StatusChange{OwnerID: owner, After: officeRecord(owner)})

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"gone", "garbled"}, result.InvalidTokens)
	assert.ElementsMatch(t, []string{"gone", "garbled"}, cleanup.tokens)
}

func TestDispatcher_Chunking(t *testing.T) {
	owner := uuid.New()
	friendships := &fakeFriendships{}
	targets := fakeTargets{}
	for i := 0; i < 1201; i++ {
		friend := uuid.New()
		friendships.add(owner, friend, models.FriendshipAccepted)
		targets[friend] = fmt.Sprintf("token-%04d", i)
	}
	sender := &recordingSender{}
	d := NewDispatcher(friendships, targets, sender, nil, WithParallelism(3))

	result, err := d.Handle(context.Background(), models.StatusChange{OwnerID: owner, After: officeRecord(owner)})

	require.NoError(t, err)
	assert.Equal(t, 1201, result.Success)
	require.Len(t, sender.calls, 3)
	sizes := []int{len(sender.calls[0]), len(sender.calls[1]), len(sender.calls[2])}
	sort.Ints(sizes)
	assert.Equal(t, []int{201, 500, 500}, sizes)
}

func TestDispatcher_BatchSizeClamped(t *testing.T) {
	d := NewDispatcher(&fakeFriendships{}, fakeTargets{}, &recordingSender{}, nil, WithBatchSize(1000))
	assert.Equal(t, push.MaxMulticastTokens, d.batchSize)

	d = NewDispatcher(&fakeFriendships{}, fakeTargets{}, &recordingSender{}, nil, WithBatchSize(2))
	assert.Equal(t, 2, d.batchSize)
}

func TestDispatcher_Guards(t *testing.T) {
	owner := uuid.New()
	friendships := &fakeFriendships{}
	friend := uuid.New()
	friendships.add(owner, friend, models.FriendshipAccepted)
	targets := fakeTargets{friend: "token"}

	tests := []struct {
		name   string
		change models.StatusChange
	}{
		{"identical content", func() models.StatusChange {
			before := officeRecord(owner)
			after := officeRecord(owner)
			after.Version = 2
			after.UpdatedAt = after.UpdatedAt.Add(time.Minute)
			return models.StatusChange{OwnerID: owner, Before: before, After: after}
		}()},
		{"deleted record", models.StatusChange{OwnerID: owner, Before: officeRecord(owner)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{}
			d := NewDispatcher(friendships, targets, sender, nil)

			result, err := d.Handle(context.Background(), tt.change)

			require.NoError(t, err)
			assert.Zero(t, result.Friends)
			assert.Empty(t, sender.calls)
		})
	}
}

func TestDispatcher_SkipsFriendsWithoutTargets(t *testing.T) {
	owner := uuid.New()
	friendships := &fakeFriendships{}
	a, b := uuid.New(), uuid.New()
	friendships.add(owner, a, models.FriendshipAccepted)
	friendships.add(b, owner, models.FriendshipAccepted)
	sender := &recordingSender{}

	// ACT: nobody has a target
	d := NewDispatcher(friendships, fakeTargets{}, sender, nil)
	result, err := d.Handle(context.Background(), models.StatusChange{OwnerID: owner, After: officeRecord(owner)})

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, 2, result.Friends)
	assert.Zero(t, result.Targets)
	assert.Empty(t, sender.calls)

	// ACT: one of them has one
	d = NewDispatcher(friendships, fakeTargets{b: "token-b"}, sender, nil)
	result, err = d.Handle(context.Background(), models.StatusChange{OwnerID: owner, After: officeRecord(owner)})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Targets)
	assert.Equal(t, []string{"token-b"}, sender.allTokens())
}

// flakyTargets fails the lookup for accounts listed in broken.
type flakyTargets struct {
	fakeTargets
	broken map[uuid.UUID]error
}

func (f flakyTargets) GetPushTarget(ctx context.Context, accountID uuid.UUID) (string, error) {
	if err := f.broken[accountID]; err != nil {
		return "", err
	}
	return f.fakeTargets.GetPushTarget(ctx, accountID)
}

func TestDispatcher_TargetLookupFailureSkipsFriend(t *testing.T) {
	owner := uuid.New()
	friendships := &fakeFriendships{}
	targets := flakyTargets{fakeTargets: fakeTargets{}, broken: map[uuid.UUID]error{}}

	// ARRANGE: three accepted friends, the second one's lookup fails
	for i := 1; i <= 3; i++ {
		friend := uuid.New()
		friendships.add(owner, friend, models.FriendshipAccepted)
		targets.fakeTargets[friend] = fmt.Sprintf("token-%d", i)
		if i == 2 {
			targets.broken[friend] = errors.New("connection reset")
		}
	}
	sender := &recordingSender{}
	d := NewDispatcher(friendships, targets, sender, nil)

	// ACT
	result, err := d.Handle(context.Background(), models.StatusChange{OwnerID: owner, After: officeRecord(owner)})

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, 3, result.Friends)
	assert.Equal(t, 2, result.Targets)
	assert.Equal(t, 2, result.Success)
	assert.Equal(t, []string{"token-1", "token-3"}, sender.allTokens())
}

func TestDispatcher_DuplicateEdgesCountedOnce(t *testing.T) {
	owner := uuid.New()
	friend := uuid.New()
	friendships := &fakeFriendships{}
	edge := friendships.add(owner, friend, models.FriendshipAccepted)
	friendships.edges = append(friendships.edges, edge)
	sender := &recordingSender{}
	d := NewDispatcher(friendships, fakeTargets{friend: "token"}, sender, nil)

	result, err := d.Handle(context.Background(), models.StatusChange{OwnerID: owner, After: officeRecord(owner)})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Friends)
	assert.Equal(t, []string{"token"}, sender.allTokens())
}

func TestDispatcher_NoFriends(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(&fakeFriendships{}, fakeTargets{}, sender, nil)
	owner := uuid.New()

	result, err := d.Handle(context.Background(), models.StatusChange{OwnerID: owner, After: officeRecord(owner)})

	require.NoError(t, err)
	assert.Zero(t, result.Friends)
	assert.Empty(t, sender.calls)
}

func TestDispatcher_TotalTransportFailure(t *testing.T) {
	owner := uuid.New()
	friendships := &fakeFriendships{}
	friend := uuid.New()
	friendships.add(owner, friend, models.FriendshipAccepted)
	sender := &recordingSender{callErr: push.ErrTransportUnavailable}
	d := NewDispatcher(friendships, fakeTargets{friend: "token"}, sender, nil)

	result, err := d.Handle(context.Background(), models.StatusChange{OwnerID: owner, After: officeRecord(owner)})

	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.ErrorIs(t, err, push.ErrTransportUnavailable)
	assert.Equal(t, 1, result.Failure)
	assert.Len(t, sender.calls, 1, "not retried within the invocation")
}

func TestDispatcher_FriendshipReadFailure(t *testing.T) {
	friendships := &fakeFriendships{err: errors.New("connection refused")}
	d := NewDispatcher(friendships, fakeTargets{}, &recordingSender{}, nil)
	owner := uuid.New()

	_, err := d.Handle(context.Background(), models.StatusChange{OwnerID: owner, After: officeRecord(owner)})

	assert.Error(t, err)
}

func TestDispatcher_PayloadShape(t *testing.T) {
	owner := uuid.New()
	friendships := &fakeFriendships{}
	friend := uuid.New()
	friendships.add(owner, friend, models.FriendshipAccepted)
	sender := &recordingSender{}
	d := NewDispatcher(friendships, fakeTargets{friend: "token"}, sender, nil)

	_, err := d.Handle(context.Background(), models.StatusChange{OwnerID: owner, After: officeRecord(owner)})

	require.NoError(t, err)
	require.Len(t, sender.data, 1)
	assert.Equal(t, map[string]string{
		"type":          "FRIEND_STATUS_UPDATE",
		"updatedUserId": owner.String(),
		"locationName":  "Office",
		"bssid":         "aa:bb:cc:dd:ee:ff",
		"isOnline":      "true",
		"iconId":        "ic_work",
		"colorHex":      "#0000FF",
		"timestamp":     "2026-03-01T09:30:00.000Z",
		"version":       "1",
	}, sender.data[0])
}
