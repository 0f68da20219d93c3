// Package events defines the event stream emitted during a migration run.
// Consumers subscribe through a Sink; the status server forwards each
// event to WebSocket clients as JSON.
package events

import "time"

// Event names emitted by the migration engine and tail listener.
const (
	EventRunStarted   = "run.started"
	EventRunCompleted = "run.completed"

	EventDialogStarted   = "dialog.started"
	EventDialogCompleted = "dialog.completed"
	EventDialogFailed    = "dialog.failed"
	EventDialogSkipped   = "dialog.skipped"

	EventBatchCompleted = "batch.completed"
	EventBatchFailed    = "batch.failed"

	// Rate limiting and quota events.
	EventFloodWait     = "flood.wait"
	EventQueueOverflow = "queue.overflow"
	EventDailyLimit    = "daily.limit"

	// Live-tail events for messages arriving mid-migration.
	EventTailForwarded = "tail.forwarded"
	EventTailFailed    = "tail.failed"
)

// Event is one occurrence in a run, suitable for JSON transport.
type Event struct {
	Type   string         `json:"type"`
	Time   time.Time      `json:"time"`
	ConvID int64          `json:"convId,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Sink receives events. Implementations must not block: slow consumers
// buffer or drop on their own side.
type Sink func(Event)

// Emit sends an event through sink, stamping the time. A nil sink is a
// no-op so callers never have to guard emission.
func Emit(sink Sink, typ string, convID int64, data map[string]any) {
	if sink == nil {
		return
	}
	sink(Event{Type: typ, Time: time.Now().UTC(), ConvID: convID, Data: data})
}

// Tee fans one event out to several sinks, skipping nil entries.
func Tee(sinks ...Sink) Sink {
	return func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s(e)
			}
		}
	}
}
