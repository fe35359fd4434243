package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher is a channel-backed outbox plus the consumer that drains it to
// a Notifier. Send failures are logged and dropped; they never propagate
// back to the ledger path.
type Dispatcher struct {
	ch       chan Event
	notifier Notifier
	logger   *slog.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// NewDispatcher builds a dispatcher with a buffered queue. A zero or
// negative buffer falls back to a sensible default.
func NewDispatcher(notifier Notifier, logger *slog.Logger, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		ch:       make(chan Event, buffer),
		notifier: notifier,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Emit enqueues the event. When the queue is full the event is dropped with
// a warning rather than blocking a ledger operation.
func (d *Dispatcher) Emit(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	select {
	case d.ch <- event:
	default:
		d.logger.Warn("event queue full, dropping event",
			"kind", string(event.Kind), "user_id", event.UserID, "reference", event.Reference)
	}
}

// Run consumes events until the context is cancelled or Close is called.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case event := <-d.ch:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.notifier.Send(sendCtx, event); err != nil {
		d.logger.Error("notification delivery failed",
			"kind", string(event.Kind), "user_id", event.UserID,
			"reference", event.Reference, "error", err)
	}
}

// Close stops the consumer.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() { close(d.done) })
}

// LoggerNotifier writes notifications to the structured logger. It stands in
// for the out-of-scope email/SMS delivery collaborator.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the event to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", string(event.Kind), "user_id", event.UserID,
		"reference", event.Reference, "payload", event.Payload)
	return nil
}
