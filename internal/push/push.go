// Package push delivers data-only messages to device push targets.
package push

import (
	"context"
	"errors"
)

// MaxMulticastTokens is the largest token list one multicast call accepts.
const MaxMulticastTokens = 500

var (
	// ErrUnregistered means the target no longer exists on the transport.
	ErrUnregistered = errors.New("push target not registered")
	// ErrInvalidToken means the target is malformed for the transport.
	ErrInvalidToken = errors.New("invalid push token")
	// ErrTransient is a per-target failure worth trying on a later change.
	ErrTransient = errors.New("transient push failure")
	// ErrRejected means the transport refused the message itself, not
	// the target. The target stays registered.
	ErrRejected = errors.New("push message rejected")

	ErrTooManyTokens        = errors.New("too many tokens for one multicast")
	ErrTransportUnavailable = errors.New("push transport unavailable")
)

// IsPermanent reports whether err means the target will never accept
// deliveries and should be deregistered.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnregistered) || errors.Is(err, ErrInvalidToken)
}

// MulticastMessage is one data payload addressed to many targets.
type MulticastMessage struct {
	Data   map[string]string
	Tokens []string
}

// SendResponse is the outcome for one token. Error is nil on success.
type SendResponse struct {
	Token     string
	MessageID string
	Error     error
}

func (r SendResponse) Success() bool {
	return r.Error == nil
}

// BatchResponse holds one SendResponse per token, in token order.
type BatchResponse struct {
	SuccessCount int
	FailureCount int
	Responses    []SendResponse
}

func newBatchResponse(responses []SendResponse) *BatchResponse {
	batch := &BatchResponse{Responses: responses}
	for _, r := range responses {
		if r.Success() {
			batch.SuccessCount++
		} else {
			batch.FailureCount++
		}
	}
	return batch
}

// MulticastSender sends a message to each token independently. A failing
// token never prevents delivery to the others. The returned error is
// reserved for failures of the call as a whole.
type MulticastSender interface {
	SendEachForMulticast(ctx context.Context, msg *MulticastMessage) (*BatchResponse, error)
}

func validate(msg *MulticastMessage) error {
	if msg == nil || len(msg.Tokens) == 0 {
		return errors.New("multicast message has no tokens")
	}
	if len(msg.Tokens) > MaxMulticastTokens {
		return ErrTooManyTokens
	}
	return nil
}
