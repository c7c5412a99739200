package mediastore

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// NoopNotifier is a no-operation implementation of Notifier.
// Useful when no delivery channel is wired or for testing.
type NoopNotifier struct{}

// NewNoopNotifier creates a new no-operation notifier
func NewNoopNotifier() Notifier {
	return &NoopNotifier{}
}

// Notify does nothing and returns nil
func (n *NoopNotifier) Notify(ctx context.Context, recipientID uuid.UUID, message string) error {
	return nil
}

// LogNotifier writes alert messages to a logger instead of delivering
// them. Useful for deployments whose push channel is configured
// elsewhere.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs every message
func NewLogNotifier(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the message and returns nil
func (n *LogNotifier) Notify(ctx context.Context, recipientID uuid.UUID, message string) error {
	n.logger.Info("notification", "recipient", recipientID, "message", message)
	return nil
}
