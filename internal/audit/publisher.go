package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"veriflow/pkg/requestcontext"
)

// Publisher accepts audit events from domain services and hands them to a
// background worker over a buffered channel. Emit never blocks the caller:
// when the buffer is full the event is dropped with a warning, since audit is
// best-effort and must not stall the primary operation.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

const defaultInboxSize = 256

func NewPublisher(logger *slog.Logger, inboxSize int) *Publisher {
	if inboxSize <= 0 {
		inboxSize = defaultInboxSize
	}
	return &Publisher{
		inbox:  make(chan Event, inboxSize),
		logger: logger,
	}
}

// Emit queues an event. Missing ID, timestamp and request ID are filled from
// the context.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ActorID == "" {
		if actor := requestcontext.ActorID(ctx); !actor.IsNil() {
			event.ActorID = actor.String()
		}
	}
	select {
	case p.inbox <- event:
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit inbox full, event dropped",
				"action", event.Action, "entity_id", event.EntityID)
		}
	}
}

// Sink receives events after they are persisted, typically a Kafka producer.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Worker drains the publisher inbox into the store and the optional sink.
// Store and sink failures are logged and skipped; the loop only stops on
// context cancellation.
type Worker struct {
	inbox  <-chan Event
	store  Store
	sink   Sink
	logger *slog.Logger
}

func NewWorker(publisher *Publisher, store Store, sink Sink, logger *slog.Logger) *Worker {
	return &Worker{inbox: publisher.inbox, store: store, sink: sink, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			w.process(ctx, event)
		}
	}
}

func (w *Worker) process(ctx context.Context, event Event) {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.store.Append(writeCtx, event); err != nil && w.logger != nil {
		w.logger.WarnContext(ctx, "audit append failed",
			"action", event.Action, "entity_id", event.EntityID, "error", err)
	}
	if w.sink == nil {
		return
	}
	if err := w.sink.Publish(writeCtx, event); err != nil && w.logger != nil {
		w.logger.WarnContext(ctx, "audit sink publish failed",
			"action", event.Action, "entity_id", event.EntityID, "error", err)
	}
}
