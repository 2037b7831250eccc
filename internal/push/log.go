package push

import (
	"context"
	"log/slog"
)

// LogSender logs messages instead of delivering them. Used when no push
// transport is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendEachForMulticast(_ context.Context, msg *MulticastMessage) (*BatchResponse, error) {
	if err := validate(msg); err != nil {
		return nil, err
	}
	responses := make([]SendResponse, len(msg.Tokens))
	for i, token := range msg.Tokens {
		responses[i] = SendResponse{Token: token}
	}
	s.logger.Info("push message", "targets", len(msg.Tokens), "data", msg.Data)
	return newBatchResponse(responses), nil
}
