package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/hospitality-access/internal/core/events"
)

type EntryWriter interface {
	Insert(ctx context.Context, e Entry) error
}

// Recorder persists entries published by a BusSink.
type Recorder struct {
	store  EntryWriter
	logger *slog.Logger
}

func NewRecorder(store EntryWriter, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

func (r *Recorder) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeAccessAudit, r.HandleEntry)
}

// HandleEntry is the bus handler. A failed write is logged and the entry is
// dropped.
func (r *Recorder) HandleEntry(ctx context.Context, event events.Event) error {
	ev, ok := event.(*EntryEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	if err := r.store.Insert(ctx, ev.Entry); err != nil {
		r.logger.ErrorContext(ctx, "failed to persist audit entry",
			"audit_id", ev.Entry.ID,
			"module", ev.Entry.Module,
			"action", ev.Entry.Action,
			"error", err)
	}
	return nil
}
