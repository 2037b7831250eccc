package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is prepended to a device token to form its push subject.
const SubjectPrefix = "presence.push."

const flushTimeout = 5 * time.Second

// Subject returns the subject a device with token listens on.
func Subject(token string) string {
	return SubjectPrefix + token
}

// ValidNATSToken reports whether token can be used as a single subject
// token.
func ValidNATSToken(token string) bool {
	return token != "" && !strings.ContainsAny(token, ".*> \t\r\n")
}

// NATSSender publishes each message on the target device's subject. Core
// NATS has no delivery receipts, so a published message counts as sent;
// offline devices catch up from the status API when they reconnect.
type NATSSender struct {
	conn *nats.Conn
}

func NewNATSSender(conn *nats.Conn) *NATSSender {
	return &NATSSender{conn: conn}
}

func (s *NATSSender) SendEachForMulticast(ctx context.Context, msg *MulticastMessage) (*BatchResponse, error) {
	if err := validate(msg); err != nil {
		return nil, err
	}
	if !s.conn.IsConnected() {
		return nil, ErrTransportUnavailable
	}

	data, err := json.Marshal(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	responses := make([]SendResponse, len(msg.Tokens))
	for i, token := range msg.Tokens {
		responses[i] = SendResponse{Token: token}
		if !ValidNATSToken(token) {
			responses[i].Error = ErrInvalidToken
			continue
		}
		if err := s.conn.Publish(Subject(token), data); err != nil {
			responses[i].Error = fmt.Errorf("%w: %w", ErrTransient, err)
		}
	}

	// FlushWithContext rejects contexts without a deadline
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	return newBatchResponse(responses), nil
}
