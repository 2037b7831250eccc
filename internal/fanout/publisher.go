package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prudhvinik1/homepresence/internal/database"
	"github.com/prudhvinik1/homepresence/internal/models"
)

// Handler consumes status changes. Dispatcher implements it.
type Handler interface {
	Handle(ctx context.Context, change models.StatusChange) (Result, error)
}

// StreamPublisher appends status changes to the JetStream status stream.
// The message id carries owner and version so a retried publish of the
// same write is deduplicated by the server.
type StreamPublisher struct {
	js jetstream.JetStream
}

func NewStreamPublisher(js jetstream.JetStream) *StreamPublisher {
	return &StreamPublisher{js: js}
}

func (p *StreamPublisher) Publish(ctx context.Context, change models.StatusChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to encode status change: %w", err)
	}

	subject := database.StatusSubjectPrefix + change.OwnerID.String()
	opts := []jetstream.PublishOpt{}
	if change.After != nil && change.After.Version > 0 {
		opts = append(opts, jetstream.WithMsgID(change.OwnerID.String()+":"+strconv.FormatInt(change.After.Version, 10)))
	}

	if _, err := p.js.Publish(ctx, subject, data, opts...); err != nil {
		return fmt.Errorf("failed to publish status change: %w", err)
	}
	return nil
}

// InlinePublisher runs the handler in-process, off the request path. Used
// when no change stream is configured.
type InlinePublisher struct {
	handler Handler
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewInlinePublisher(handler Handler, timeout time.Duration, logger *slog.Logger) *InlinePublisher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &InlinePublisher{handler: handler, timeout: timeout, logger: logger}
}

func (p *InlinePublisher) Publish(ctx context.Context, change models.StatusChange) error {
	// the fan-out outlives the request that caused it
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		if _, err := p.handler.Handle(ctx, change); err != nil {
			p.logger.Error("inline fan-out failed", "user_id", change.OwnerID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until in-flight fan-outs finish or ctx is done.
func (p *InlinePublisher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
