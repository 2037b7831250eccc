package statuscache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/prudhvinik1/homepresence/internal/push"
)

// Receiver subscribes to this device's push subject and feeds messages
// into the cache.
type Receiver struct {
	conn   *nats.Conn
	token  string
	cache  *Cache
	logger *slog.Logger
	sub    *nats.Subscription
}

func NewReceiver(conn *nats.Conn, token string, cache *Cache, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Receiver{conn: conn, token: token, cache: cache, logger: logger}
}

func (r *Receiver) Start(ctx context.Context) error {
	if !push.ValidNATSToken(r.token) {
		return fmt.Errorf("invalid push token %q", r.token)
	}

	sub, err := r.conn.Subscribe(push.Subject(r.token), func(msg *nats.Msg) {
		var data map[string]string
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			r.logger.Debug("ignoring undecodable push", "error", err)
			return
		}
		r.cache.OnPushReceived(ctx, data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to push subject: %w", err)
	}
	r.sub = sub
	r.logger.Info("push receiver started", "subject", sub.Subject)
	return nil
}

func (r *Receiver) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}
