package audit

import (
	"context"
	"log/slog"

	"irrl/internal/domain"
)

// AsyncMirror decouples mirror publishing from the request path. Record
// hands events to a buffered channel; a background worker drains it. A full
// buffer drops the event rather than stall an append.
type AsyncMirror struct {
	sink   Mirror
	logger *slog.Logger
	inbox  chan domain.AuditEvent
}

func NewAsyncMirror(sink Mirror, logger *slog.Logger, buffer int) *AsyncMirror {
	return &AsyncMirror{
		sink:   sink,
		logger: logger,
		inbox:  make(chan domain.AuditEvent, buffer),
	}
}

// Publish enqueues without blocking.
func (m *AsyncMirror) Publish(_ context.Context, event domain.AuditEvent) error {
	select {
	case m.inbox <- event:
	default:
		m.logger.Warn("audit mirror buffer full, dropping event", "event_id", event.ID)
	}
	return nil
}

// Run drains the inbox until the context is cancelled.
func (m *AsyncMirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-m.inbox:
			if err := m.sink.Publish(ctx, event); err != nil {
				m.logger.WarnContext(ctx, "audit mirror publish failed",
					"event_id", event.ID, "error", err)
			}
		}
	}
}
