package notify

import (
	"context"
	"log/slog"
)

// Transport delivers a message to its recipient. Implementations decide the
// medium (email gateway, message broker, dev log); delivery retries beyond
// a returned error are not this package's concern.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// LogTransport writes messages to the structured log instead of delivering
// them. Default for development setups without a broker.
type LogTransport struct {
	Logger *slog.Logger
}

func (t *LogTransport) Send(_ context.Context, msg Message) error {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification",
		"to", msg.To,
		"type", msg.Type,
		"subject", msg.Subject,
	)
	return nil
}
