// Package audit records every kiosk check-in outcome. Events flow through a
// buffered channel to a background worker so the check-in path never blocks
// on the audit sink.
package audit

import (
	"context"
	"log/slog"

	"kioskgw/pkg/requestcontext"
)

// Sink persists audit events. It is append-only so tests can swap sinks
// easily.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher accepts audit events from domain logic and hands them to the
// worker. Emit never blocks: when the buffer is full the event is dropped
// and logged, because a stalled audit sink must not stall check-ins.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewPublisher creates a publisher with the given buffer size.
func NewPublisher(bufferSize int, logger *slog.Logger) *Publisher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Publisher{
		inbox:  make(chan Event, bufferSize),
		logger: logger,
	}
}

// Emit queues one audit event. Missing timestamps and request IDs are filled
// in from the clock and context.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"request_id", event.RequestID,
			"outcome", event.Outcome,
		)
	}
}

// Events exposes the inbox for the worker.
func (p *Publisher) Events() <-chan Event {
	return p.inbox
}
