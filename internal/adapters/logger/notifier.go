package logger

import (
	"context"

	"cryptoSignalBot/internal/ports"
)

// LogNotifier is the fallback ports.Notifier when no chat transport is configured.
type LogNotifier struct {
	logger ports.Logger
}

// NewLogNotifier returns a notifier that writes alerts as warnings.
func NewLogNotifier(logger ports.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs msg at Warn level.
func (n *LogNotifier) Notify(ctx context.Context, msg string) error {
	n.logger.Warn(ctx, "OPERATOR ALERT: "+msg)
	return nil
}
