package audit

import (
	"context"
	"log/slog"
)

// Worker consumes audit events from the publisher and persists them. A sink
// failure is logged and the worker keeps going; the audit trail is
// best-effort by contract.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

// NewWorker creates a worker draining the given inbox into the sink.
func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run processes events until the context is canceled, then drains whatever
// is still buffered before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.append(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case event := <-w.inbox:
			w.append(context.Background(), event)
		default:
			return
		}
	}
}

func (w *Worker) append(ctx context.Context, event Event) {
	if err := w.sink.Append(ctx, event); err != nil {
		w.logger.Error("audit append failed",
			"request_id", event.RequestID,
			"outcome", event.Outcome,
			"error", err,
		)
	}
}
