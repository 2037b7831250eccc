package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prudhvinik1/homepresence/internal/database"
	"github.com/prudhvinik1/homepresence/internal/models"
)

const (
	DefaultConsumerName = "fanout-dispatcher"
	consumerAckWait     = 60 * time.Second
	fetchMaxWait        = 5 * time.Second
	fetchBatch          = 16
)

// Consumer feeds the status change stream into a Handler. Each change is
// delivered once: messages are acknowledged after handling whatever the
// outcome, since a later write supersedes a missed fan-out.
type Consumer struct {
	stream   jetstream.Stream
	name     string
	handler  Handler
	workers  int
	logger   *slog.Logger
	consumer jetstream.Consumer
}

func NewConsumer(stream jetstream.Stream, handler Handler, workers int, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		stream:  stream,
		name:    DefaultConsumerName,
		handler: handler,
		workers: workers,
		logger:  logger,
	}
}

// Start creates the durable consumer. Run must be called afterwards.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       c.name,
		FilterSubject: database.StatusSubjectPrefix + ">",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       consumerAckWait,
		MaxDeliver:    3,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	c.consumer = consumer
	c.logger.Info("fan-out consumer started", "stream", database.StatusStreamName, "consumer", c.name)
	return nil
}

// Run fetches until ctx is cancelled. Messages of one batch are handled by
// up to workers goroutines; different owners' changes are independent.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.consumer.Fetch(fetchBatch, jetstream.FetchMaxWait(fetchMaxWait))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("fetch failed", "error", err)
			continue
		}

		sem := make(chan struct{}, c.workers)
		var wg sync.WaitGroup
		for msg := range msgs.Messages() {
			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				c.handleMessage(ctx, msg)
			}()
		}
		wg.Wait()

		if msgs.Error() != nil && ctx.Err() == nil {
			c.logger.Debug("fetch error", "error", msgs.Error())
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg) {
	if ctx.Err() != nil {
		if err := msg.Nak(); err != nil {
			c.logger.Warn("failed to NAK message during shutdown", "error", err)
		}
		return
	}

	var change models.StatusChange
	if err := json.Unmarshal(msg.Data(), &change); err != nil {
		c.logger.Error("failed to decode status change", "subject", msg.Subject(), "error", err)
		if err := msg.Term(); err != nil {
			c.logger.Warn("failed to TERM malformed message", "error", err)
		}
		return
	}

	if _, err := c.handler.Handle(ctx, change); err != nil {
		c.logger.Error("fan-out failed", "user_id", change.OwnerID, "error", err)
	}
	if err := msg.Ack(); err != nil {
		c.logger.Warn("failed to ACK message", "error", err)
	}
}
