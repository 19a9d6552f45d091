package queue

// EventType identifies a queue lifecycle event.
type EventType string

const (
	// EventEnqueued fires after an item is accepted into the queue.
	EventEnqueued EventType = "enqueued"
	// EventEvicted fires when a full queue drops an item to make room.
	EventEvicted EventType = "evicted"
	// EventProcessed fires after a replay handler succeeds.
	EventProcessed EventType = "processed"
	// EventRetryScheduled fires when a replay fails but attempts remain.
	EventRetryScheduled EventType = "retry_scheduled"
	// EventExhausted fires when an item is dropped after its final
	// failed attempt. This is the permanent-failure report.
	EventExhausted EventType = "exhausted"
	// EventRemoved fires when an item is removed by the caller.
	EventRemoved EventType = "removed"
	// EventCleared fires when the queue is emptied by the caller.
	EventCleared EventType = "cleared"
	// EventOnline and EventOffline fire on connectivity changes.
	EventOnline  EventType = "online"
	EventOffline EventType = "offline"
)

// Event describes a queue state change delivered to subscribers.
type Event struct {
	Type EventType
	// Item is set for item-scoped events, nil for connectivity events.
	Item *Item
	// Err carries the handler error for retry_scheduled and exhausted.
	Err error
	// Size is the queue depth after the event.
	Size int
}

// Listener receives queue events. Listeners run synchronously on the
// mutating goroutine; a panicking listener is isolated and logged, and
// never corrupts queue state.
type Listener func(Event)
