package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/apikit/kv"
	"github.com/kbukum/apikit/logger"
)

// Queue errors.
var (
	// ErrOffline is returned by Process while the queue is offline.
	ErrOffline = errors.New("queue is offline")
	// ErrDraining is returned when a drain is already in progress.
	ErrDraining = errors.New("queue drain already in progress")
	// ErrDestroyed is returned after Destroy.
	ErrDestroyed = errors.New("queue is destroyed")
	// ErrNotFound is returned by Remove for an unknown item ID.
	ErrNotFound = errors.New("queue item not found")
)

// Handler replays one queued item. A nil return removes the item; an
// error schedules another attempt until MaxAttempts is reached.
type Handler func(ctx context.Context, item Item) error

// Config configures the offline queue.
type Config struct {
	// MaxSize bounds the queue. At capacity the lowest-priority oldest
	// item is evicted to admit a new one.
	MaxSize int
	// MaxAttempts is the default replay attempt limit for items that
	// do not set their own.
	MaxAttempts int
	// DrainInterval is the period of the background drain ticker
	// started by Start.
	DrainInterval time.Duration
	// PersistKey is the kv.Store key holding the serialized queue.
	PersistKey string
	// Store persists the queue. Defaults to an in-memory store.
	Store kv.Store
	// Logger defaults to a component-tagged default logger.
	Logger *logger.Logger
	// Now supplies the clock. Defaults to time.Now.
	Now func() time.Time
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxSize <= 0 {
		c.MaxSize = 1000
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = 30 * time.Second
	}
	if c.PersistKey == "" {
		c.PersistKey = "offline_queue"
	}
	if c.Store == nil {
		c.Store = kv.NewMemory()
	}
	if c.Logger == nil {
		c.Logger = logger.NewDefault("apikit").WithComponent("queue")
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Stats is a point-in-time snapshot of queue depth. Pending items await
// their first attempt, Processing items are in the replay handler, and
// Failed items have at least one failed attempt behind them.
type Stats struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Critical   int
	ByPriority map[Priority]int
	Oldest     time.Time
	Online     bool
	Draining   bool
}

// Queue is a priority-ordered, persistent queue of requests awaiting
// replay. All methods are safe for concurrent use.
type Queue struct {
	cfg Config
	log *logger.Logger

	mu        sync.Mutex
	items     []Item
	online    bool
	draining  bool
	destroyed bool
	// processingID is the item currently in the replay handler, if any.
	processingID string

	handler   Handler
	listeners map[int]Listener
	nextSub   int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a queue and restores any persisted items. The queue
// starts offline; call SetOnline when connectivity is known.
func New(cfg Config) (*Queue, error) {
	cfg.ApplyDefaults()

	q := &Queue{
		cfg:       cfg,
		log:       cfg.Logger,
		listeners: make(map[int]Listener),
		stopCh:    make(chan struct{}),
	}

	if err := q.restore(); err != nil {
		return nil, err
	}
	return q, nil
}

// SetHandler installs the replay handler. Must be set before the queue
// can drain.
func (q *Queue) SetHandler(h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = h
}

// Enqueue adds an item, assigning its ID, timestamp, and defaults. At
// capacity the lowest-priority oldest item is evicted first. The stored
// item is returned. While the queue is online, an asynchronous drain
// starts immediately.
func (q *Queue) Enqueue(ctx context.Context, item Item) (Item, error) {
	q.mu.Lock()

	if q.destroyed {
		q.mu.Unlock()
		return Item{}, ErrDestroyed
	}

	if item.Endpoint == "" || item.Method == "" {
		q.mu.Unlock()
		return Item{}, fmt.Errorf("queue enqueue: endpoint and method are required")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if !item.Priority.Valid() {
		item.Priority = PriorityNormal
	}
	if item.MaxAttempts <= 0 {
		item.MaxAttempts = q.cfg.MaxAttempts
	}
	item.EnqueuedAt = q.cfg.Now()
	item.Attempt = 0

	var evicted *Item
	if len(q.items) >= q.cfg.MaxSize {
		evicted = q.evictLowestOldest()
	}

	q.insert(item)
	q.persist(ctx)

	size := len(q.items)
	online := q.online
	q.mu.Unlock()

	if evicted != nil {
		q.log.Warn("queue full, evicted item", map[string]interface{}{
			"evicted_id": evicted.ID,
			"priority":   string(evicted.Priority),
		})
		q.notify(Event{Type: EventEvicted, Item: evicted, Size: size})
	}

	q.log.Debug("item enqueued", map[string]interface{}{
		"id":       item.ID,
		"endpoint": item.Endpoint,
		"method":   item.Method,
		"priority": string(item.Priority),
		"size":     size,
	})
	q.notify(Event{Type: EventEnqueued, Item: &item, Size: size})

	// An online queue drains right away rather than waiting for the
	// ticker.
	if online {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			_ = q.Process(context.Background())
		}()
	}

	return item, nil
}

// SetOnline records connectivity. Coming online kicks off an immediate
// asynchronous drain.
func (q *Queue) SetOnline(online bool) {
	q.mu.Lock()
	if q.destroyed || q.online == online {
		q.mu.Unlock()
		return
	}
	q.online = online
	size := len(q.items)
	q.mu.Unlock()

	if online {
		q.notify(Event{Type: EventOnline, Size: size})
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			_ = q.Process(context.Background())
		}()
	} else {
		q.notify(Event{Type: EventOffline, Size: size})
	}
}

// Online reports current connectivity.
func (q *Queue) Online() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.online
}

// Process drains the queue once, replaying items in priority order.
// Each item is attempted at most once per call; failures either stay
// queued for the next drain or are dropped when attempts run out.
// Only one drain runs at a time.
func (q *Queue) Process(ctx context.Context) error {
	q.mu.Lock()
	switch {
	case q.destroyed:
		q.mu.Unlock()
		return ErrDestroyed
	case !q.online:
		q.mu.Unlock()
		return ErrOffline
	case q.draining:
		q.mu.Unlock()
		return ErrDraining
	case q.handler == nil:
		q.mu.Unlock()
		return fmt.Errorf("queue process: no handler installed")
	}
	q.draining = true
	handler := q.handler
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.processingID = ""
		q.mu.Unlock()
	}()

	seen := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		q.mu.Lock()
		if !q.online || q.destroyed {
			q.mu.Unlock()
			return nil
		}
		item, ok := q.nextUnseen(seen)
		if ok {
			q.processingID = item.ID
		}
		q.mu.Unlock()
		if !ok {
			return nil
		}
		seen[item.ID] = true

		err := handler(ctx, item)

		q.mu.Lock()
		q.processingID = ""
		idx := q.indexOf(item.ID)
		if idx < 0 {
			// Removed concurrently; nothing to record.
			q.mu.Unlock()
			continue
		}

		if err == nil {
			q.items = append(q.items[:idx], q.items[idx+1:]...)
			q.persist(ctx)
			size := len(q.items)
			q.mu.Unlock()

			q.log.Debug("queued item replayed", map[string]interface{}{
				"id":       item.ID,
				"endpoint": item.Endpoint,
			})
			q.notify(Event{Type: EventProcessed, Item: &item, Size: size})
			continue
		}

		q.items[idx].Attempt++
		updated := q.items[idx]

		if updated.Attempt >= updated.MaxAttempts {
			q.items = append(q.items[:idx], q.items[idx+1:]...)
			q.persist(ctx)
			size := len(q.items)
			q.mu.Unlock()

			q.log.Error("queued item permanently failed", map[string]interface{}{
				"id":       updated.ID,
				"endpoint": updated.Endpoint,
				"attempts": updated.Attempt,
				"error":    err.Error(),
			})
			q.notify(Event{Type: EventExhausted, Item: &updated, Err: err, Size: size})
			continue
		}

		q.persist(ctx)
		size := len(q.items)
		q.mu.Unlock()

		q.log.Warn("queued item replay failed, will retry", map[string]interface{}{
			"id":      updated.ID,
			"attempt": updated.Attempt,
			"error":   err.Error(),
		})
		q.notify(Event{Type: EventRetryScheduled, Item: &updated, Err: err, Size: size})
	}
}

// Start launches the background drain ticker. Each tick drains the
// queue if it is online and non-empty.
func (q *Queue) Start() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.cfg.DrainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-q.stopCh:
				return
			case <-ticker.C:
				if q.Online() && q.Stats().Total > 0 {
					_ = q.Process(context.Background())
				}
			}
		}
	}()
}

// Subscribe registers a listener for queue events and returns an
// unsubscribe function.
func (q *Queue) Subscribe(fn Listener) func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.nextSub
	q.nextSub++
	q.listeners[id] = fn

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.listeners, id)
	}
}

// Stats returns a snapshot of queue depth by priority.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{
		Total:      len(q.items),
		ByPriority: make(map[Priority]int),
		Online:     q.online,
		Draining:   q.draining,
	}
	for _, item := range q.items {
		s.ByPriority[item.Priority]++
		if item.Priority == PriorityCritical {
			s.Critical++
		}
		switch {
		case item.ID == q.processingID && q.processingID != "":
			s.Processing++
		case item.Attempt > 0:
			s.Failed++
		default:
			s.Pending++
		}
		if s.Oldest.IsZero() || item.EnqueuedAt.Before(s.Oldest) {
			s.Oldest = item.EnqueuedAt
		}
	}
	return s
}

// Remove deletes the item with the given ID without replaying it.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()

	if q.destroyed {
		q.mu.Unlock()
		return ErrDestroyed
	}
	i := q.indexOf(id)
	if i < 0 {
		q.mu.Unlock()
		return ErrNotFound
	}

	removed := q.items[i]
	q.items = append(q.items[:i], q.items[i+1:]...)
	q.persist(ctx)
	size := len(q.items)
	q.mu.Unlock()

	q.notify(Event{Type: EventRemoved, Item: &removed, Size: size})
	return nil
}

// Clear drops all queued items without replaying them.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()

	if q.destroyed {
		q.mu.Unlock()
		return ErrDestroyed
	}
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil
	}

	q.items = nil
	q.persist(ctx)
	q.mu.Unlock()

	q.notify(Event{Type: EventCleared, Size: 0})
	return nil
}

// Items returns a copy of the queued items in drain order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}

// Destroy stops the drain ticker, persists remaining items, and marks
// the queue unusable. Queued items survive for the next process.
func (q *Queue) Destroy() {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return
	}
	q.destroyed = true
	q.online = false
	close(q.stopCh)
	q.persist(context.Background())
	q.mu.Unlock()

	q.wg.Wait()
}

// insert places item after all items of equal or higher priority,
// preserving enqueue order within a priority. Must hold q.mu.
func (q *Queue) insert(item Item) {
	pos := len(q.items)
	for i, existing := range q.items {
		if existing.Priority.rank() > item.Priority.rank() {
			pos = i
			break
		}
	}
	q.items = append(q.items, Item{})
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = item
}

// evictLowestOldest removes and returns the oldest item of the lowest
// priority present. Must hold q.mu.
func (q *Queue) evictLowestOldest() *Item {
	if len(q.items) == 0 {
		return nil
	}

	// Items are ordered by priority then enqueue time, so the victim is
	// the first item of the last priority segment.
	worst := q.items[len(q.items)-1].Priority.rank()
	for i, item := range q.items {
		if item.Priority.rank() == worst {
			victim := item
			q.items = append(q.items[:i], q.items[i+1:]...)
			return &victim
		}
	}
	return nil
}

// nextUnseen returns the first item not yet attempted this drain.
// Must hold q.mu.
func (q *Queue) nextUnseen(seen map[string]bool) (Item, bool) {
	for _, item := range q.items {
		if !seen[item.ID] {
			return item, true
		}
	}
	return Item{}, false
}

// indexOf returns the position of the item with id, or -1. Must hold q.mu.
func (q *Queue) indexOf(id string) int {
	for i, item := range q.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// persist writes the queue through the store. Persistence failures are
// logged and do not fail the mutation. Must hold q.mu.
func (q *Queue) persist(ctx context.Context) {
	raw, err := json.Marshal(q.items)
	if err != nil {
		q.log.Error("queue persist marshal failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := q.cfg.Store.Set(ctx, q.cfg.PersistKey, string(raw)); err != nil {
		q.log.Error("queue persist failed", map[string]interface{}{"error": err.Error()})
	}
}

// restore loads persisted items, dropping anything malformed. A store
// read error is fatal; corrupt payloads are not.
func (q *Queue) restore() error {
	raw, ok, err := q.cfg.Store.Get(context.Background(), q.cfg.PersistKey)
	if err != nil {
		return fmt.Errorf("queue restore: %w", err)
	}
	if !ok || raw == "" {
		return nil
	}

	var items []Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		q.log.Warn("queue restore: corrupt state discarded", map[string]interface{}{"error": err.Error()})
		return nil
	}

	for _, item := range items {
		if !item.valid() {
			q.log.Warn("queue restore: dropped malformed item", map[string]interface{}{"id": item.ID})
			continue
		}
		if !item.Priority.Valid() {
			item.Priority = PriorityNormal
		}
		if item.MaxAttempts <= 0 {
			item.MaxAttempts = q.cfg.MaxAttempts
		}
		if item.EnqueuedAt.IsZero() {
			item.EnqueuedAt = q.cfg.Now()
		}
		q.insert(item)
	}

	if len(q.items) > 0 {
		q.log.Info("queue restored", map[string]interface{}{"items": len(q.items)})
	}
	return nil
}

// notify delivers an event to all listeners, isolating panics.
func (q *Queue) notify(ev Event) {
	q.mu.Lock()
	fns := make([]Listener, 0, len(q.listeners))
	for _, fn := range q.listeners {
		fns = append(fns, fn)
	}
	q.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					q.log.Error("queue listener panicked", map[string]interface{}{
						"event": string(ev.Type),
						"panic": fmt.Sprintf("%v", r),
					})
				}
			}()
			fn(ev)
		}()
	}
}
