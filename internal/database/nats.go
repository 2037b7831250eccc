package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	StatusStreamName     = "PRESENCE_STATUS"
	StatusSubjectPrefix  = "presence.status."
	StatusStreamMaxAge   = 24 * time.Hour
	natsReconnectWait    = 2 * time.Second
	natsMaxReconnects    = -1
	natsConnectionPrefix = "homepresence"
)

// NewNATSConnection dials NATS with unlimited reconnects.
func NewNATSConnection(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(natsConnectionPrefix+"-"+name),
		nats.ReconnectWait(natsReconnectWait),
		nats.MaxReconnects(natsMaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("error connecting to nats: %w", err)
	}

	logger.Info("nats connection created", "url", nc.ConnectedUrl())
	return nc, nil
}

// EnsureStatusStream creates or updates the stream carrying status
// changes. Messages are work items: each is removed once acknowledged.
func EnsureStatusStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StatusStreamName,
		Subjects:  []string{StatusSubjectPrefix + ">"},
		Retention: jetstream.WorkQueuePolicy,
		MaxAge:    StatusStreamMaxAge,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating stream %s: %w", StatusStreamName, err)
	}
	return stream, nil
}
