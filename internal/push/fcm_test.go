package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFCM answers per token: "bad-*" tokens are unregistered, "flaky-*"
// tokens get a 503, everything else succeeds.
func fakeFCM(t *testing.T) (*httptest.Server, *[]fcmRequest) {
	var mu sync.Mutex
	var received []fcmRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/demo/messages:send", r.URL.Path)

		var req fcmRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, req)
		mu.Unlock()

		token := req.Message.Token
		switch {
		case strings.HasPrefix(token, "bad-"):
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND",
				"details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"UNREGISTERED"}]}}`)
		case strings.HasPrefix(token, "flaky-"):
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"code":503,"message":"unavailable","status":"UNAVAILABLE"}}`)
		default:
			fmt.Fprintf(w, `{"name":"projects/demo/messages/%s"}`, token)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func TestFCMSender_PerTokenOutcomes(t *testing.T) {
	srv, received := fakeFCM(t)
	sender := NewFCMSender(srv.Client(), "demo", nil, WithEndpoint(srv.URL), WithParallelism(2))

	// ACT
	batch, err := sender.SendEachForMulticast(context.Background(), &MulticastMessage{
		Data:   map[string]string{"type": "FRIEND_STATUS_UPDATE"},
		Tokens: []string{"t1", "t2", "flaky-3", "t4", "bad-5"},
	})

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, 3, batch.SuccessCount)
	assert.Equal(t, 2, batch.FailureCount)
	require.Len(t, batch.Responses, 5)

	assert.Equal(t, "projects/demo/messages/t1", batch.Responses[0].MessageID)
	assert.ErrorIs(t, batch.Responses[2].Error, ErrTransient)
	assert.False(t, IsPermanent(batch.Responses[2].Error))
	assert.ErrorIs(t, batch.Responses[4].Error, ErrUnregistered)
	assert.True(t, IsPermanent(batch.Responses[4].Error))

	assert.Len(t, *received, 5, "each token is tried exactly once")
	for _, req := range *received {
		assert.Equal(t, "FRIEND_STATUS_UPDATE", req.Message.Data["type"])
		assert.Equal(t, "high", req.Message.Android.Priority)
	}
}

func TestFCMSender_RejectsOversizedBatch(t *testing.T) {
	sender := NewFCMSender(http.DefaultClient, "demo", nil)
	tokens := make([]string, MaxMulticastTokens+1)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("t%d", i)
	}

	_, err := sender.SendEachForMulticast(context.Background(), &MulticastMessage{Tokens: tokens})

	assert.ErrorIs(t, err, ErrTooManyTokens)
}

func TestFCMSender_CancelledContext(t *testing.T) {
	srv, _ := fakeFCM(t)
	sender := NewFCMSender(srv.Client(), "demo", nil, WithEndpoint(srv.URL))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := sender.SendEachForMulticast(ctx, &MulticastMessage{Tokens: []string{"t1"}})

	require.NoError(t, err)
	assert.Equal(t, 1, batch.FailureCount)
	assert.ErrorIs(t, batch.Responses[0].Error, ErrTransient)
}

func TestClassifyFCMError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"invalid token", 400, `{"error":{"status":"INVALID_ARGUMENT","message":"The registration token is not a valid FCM registration token"}}`, ErrInvalidToken},
		{"invalid token field", 400, `{"error":{"status":"INVALID_ARGUMENT","message":"Invalid value","details":[{"@type":"type.googleapis.com/google.rpc.BadRequest","fieldViolations":[{"field":"message.token","description":"Invalid registration token"}]}]}}`, ErrInvalidToken},
		{"oversized payload", 400, `{"error":{"status":"INVALID_ARGUMENT","message":"Request contains an invalid argument: message is too big"}}`, ErrRejected},
		{"sender mismatch", 403, `{"error":{"status":"PERMISSION_DENIED","details":[{"errorCode":"SENDER_ID_MISMATCH"}]}}`, ErrRejected},
		{"unregistered detail", 404, `{"error":{"status":"NOT_FOUND","details":[{"errorCode":"UNREGISTERED"}]}}`, ErrUnregistered},
		{"quota", 429, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, ErrTransient},
		{"server error without body", 500, ``, ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyFCMError(tt.status, []byte(tt.body)), tt.want)
		})
	}

	other := classifyFCMError(http.StatusForbidden, []byte(`{"error":{"status":"PERMISSION_DENIED"}}`))
	assert.False(t, IsPermanent(other))
	assert.False(t, errors.Is(other, ErrTransient))

	tooBig := classifyFCMError(http.StatusBadRequest, []byte(`{"error":{"status":"INVALID_ARGUMENT","message":"message is too big"}}`))
	assert.False(t, IsPermanent(tooBig), "payload faults keep the target")
}

func TestLogSender(t *testing.T) {
	batch, err := NewLogSender(discardLogger()).SendEachForMulticast(context.Background(), &MulticastMessage{
		Data:   map[string]string{"k": "v"},
		Tokens: []string{"a", "b"},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, batch.SuccessCount)

	_, err = NewLogSender(discardLogger()).SendEachForMulticast(context.Background(), &MulticastMessage{})
	assert.Error(t, err)
}

func TestValidNATSToken(t *testing.T) {
	assert.True(t, ValidNATSToken("3f1c2a9e-7b1d-4c55-9d0e-1a2b3c4d5e6f"))
	assert.False(t, ValidNATSToken(""))
	assert.False(t, ValidNATSToken("a.b"))
	assert.False(t, ValidNATSToken("*"))
	assert.False(t, ValidNATSToken("has space"))
	assert.Equal(t, "presence.push.abc", Subject("abc"))
}
