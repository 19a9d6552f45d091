package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/apikit/kv"
)

func newTestQueue(t *testing.T, cfg Config) *Queue {
	t.Helper()
	q, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(q.Destroy)
	return q
}

func TestQueue_EnqueueAssignsDefaults(t *testing.T) {
	q := newTestQueue(t, Config{})

	item, err := q.Enqueue(context.Background(), Item{
		Endpoint: "/orders",
		Method:   "POST",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if item.ID == "" {
		t.Error("expected generated ID")
	}
	if item.Priority != PriorityNormal {
		t.Errorf("expected normal priority, got %s", item.Priority)
	}
	if item.MaxAttempts != 5 {
		t.Errorf("expected default max attempts 5, got %d", item.MaxAttempts)
	}
	if item.EnqueuedAt.IsZero() {
		t.Error("expected EnqueuedAt to be set")
	}
}

func TestQueue_EnqueueRequiresEndpointAndMethod(t *testing.T) {
	q := newTestQueue(t, Config{})

	if _, err := q.Enqueue(context.Background(), Item{Method: "POST"}); err == nil {
		t.Error("expected error for missing endpoint")
	}
	if _, err := q.Enqueue(context.Background(), Item{Endpoint: "/x"}); err == nil {
		t.Error("expected error for missing method")
	}
}

func TestQueue_DrainOrderByPriorityThenFIFO(t *testing.T) {
	q := newTestQueue(t, Config{})
	ctx := context.Background()

	enqueue := func(endpoint string, p Priority) {
		t.Helper()
		if _, err := q.Enqueue(ctx, Item{Endpoint: endpoint, Method: "POST", Priority: p}); err != nil {
			t.Fatalf("Enqueue %s: %v", endpoint, err)
		}
	}

	enqueue("/low-1", PriorityLow)
	enqueue("/normal-1", PriorityNormal)
	enqueue("/critical-1", PriorityCritical)
	enqueue("/normal-2", PriorityNormal)
	enqueue("/high-1", PriorityHigh)
	enqueue("/critical-2", PriorityCritical)

	want := []string{"/critical-1", "/critical-2", "/high-1", "/normal-1", "/normal-2", "/low-1"}
	items := q.Items()
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i, w := range want {
		if items[i].Endpoint != w {
			t.Errorf("position %d: expected %s, got %s", i, w, items[i].Endpoint)
		}
	}
}

func TestQueue_EvictsLowestPriorityOldestWhenFull(t *testing.T) {
	q := newTestQueue(t, Config{MaxSize: 3})
	ctx := context.Background()

	var evicted []string
	q.Subscribe(func(ev Event) {
		if ev.Type == EventEvicted {
			evicted = append(evicted, ev.Item.Endpoint)
		}
	})

	_, _ = q.Enqueue(ctx, Item{Endpoint: "/low-old", Method: "POST", Priority: PriorityLow})
	_, _ = q.Enqueue(ctx, Item{Endpoint: "/low-new", Method: "POST", Priority: PriorityLow})
	_, _ = q.Enqueue(ctx, Item{Endpoint: "/high", Method: "POST", Priority: PriorityHigh})

	// Queue is full; the oldest low-priority item makes room.
	_, err := q.Enqueue(ctx, Item{Endpoint: "/critical", Method: "POST", Priority: PriorityCritical})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if len(evicted) != 1 || evicted[0] != "/low-old" {
		t.Errorf("expected /low-old evicted, got %v", evicted)
	}
	if stats := q.Stats(); stats.Total != 3 {
		t.Errorf("expected size 3, got %d", stats.Total)
	}
}

func TestQueue_ProcessRemovesSucceededItems(t *testing.T) {
	q := newTestQueue(t, Config{})
	ctx := context.Background()

	var mu sync.Mutex
	var processed []string
	q.SetHandler(func(ctx context.Context, item Item) error {
		mu.Lock()
		processed = append(processed, item.Endpoint)
		mu.Unlock()
		return nil
	})

	_, _ = q.Enqueue(ctx, Item{Endpoint: "/a", Method: "POST", Priority: PriorityHigh})
	_, _ = q.Enqueue(ctx, Item{Endpoint: "/b", Method: "POST"})

	q.SetOnline(true)
	waitForEmpty(t, q)

	mu.Lock()
	defer mu.Unlock()
	if len(processed) != 2 || processed[0] != "/a" || processed[1] != "/b" {
		t.Errorf("expected [/a /b], got %v", processed)
	}
}

func TestQueue_ProcessRequiresOnline(t *testing.T) {
	q := newTestQueue(t, Config{})
	q.SetHandler(func(ctx context.Context, item Item) error { return nil })

	if err := q.Process(context.Background()); !errors.Is(err, ErrOffline) {
		t.Errorf("expected ErrOffline, got %v", err)
	}
}

func TestQueue_ProcessMutualExclusion(t *testing.T) {
	q, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Destroy()

	release := make(chan struct{})
	started := make(chan struct{})
	q.SetHandler(func(ctx context.Context, item Item) error {
		close(started)
		<-release
		return nil
	})

	_, _ = q.Enqueue(context.Background(), Item{Endpoint: "/slow", Method: "POST"})

	q.mu.Lock()
	q.online = true
	q.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- q.Process(context.Background()) }()
	<-started

	if err := q.Process(context.Background()); !errors.Is(err, ErrDraining) {
		t.Errorf("expected ErrDraining, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first drain: %v", err)
	}
}

func TestQueue_ExhaustedItemIsDroppedAndReported(t *testing.T) {
	q := newTestQueue(t, Config{})
	ctx := context.Background()

	handlerErr := errors.New("server rejected")
	var attempts atomic.Int32
	q.SetHandler(func(ctx context.Context, item Item) error {
		attempts.Add(1)
		return handlerErr
	})

	var mu sync.Mutex
	var exhausted []Event
	var retries int
	q.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Type {
		case EventExhausted:
			exhausted = append(exhausted, ev)
		case EventRetryScheduled:
			retries++
		}
	})

	_, _ = q.Enqueue(ctx, Item{Endpoint: "/doomed", Method: "POST", MaxAttempts: 2})

	q.SetOnline(true)

	// Attempt 1 fails and the item stays queued.
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return retries == 1
	})
	waitForIdle(t, q)

	// Drain again for the final attempt.
	if err := q.Process(ctx); err != nil {
		t.Fatalf("second drain: %v", err)
	}
	waitForEmpty(t, q)

	if got := attempts.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if retries != 1 {
		t.Errorf("expected 1 retry_scheduled event, got %d", retries)
	}
	if len(exhausted) != 1 {
		t.Fatalf("expected 1 exhausted event, got %d", len(exhausted))
	}
	if !errors.Is(exhausted[0].Err, handlerErr) {
		t.Errorf("expected handler error on exhausted event, got %v", exhausted[0].Err)
	}
	if exhausted[0].Item.Endpoint != "/doomed" {
		t.Errorf("expected /doomed, got %s", exhausted[0].Item.Endpoint)
	}
}

func TestQueue_ListenerPanicIsIsolated(t *testing.T) {
	q := newTestQueue(t, Config{})

	q.Subscribe(func(ev Event) {
		panic("listener bug")
	})

	var got []EventType
	q.Subscribe(func(ev Event) {
		got = append(got, ev.Type)
	})

	if _, err := q.Enqueue(context.Background(), Item{Endpoint: "/x", Method: "POST"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if len(got) != 1 || got[0] != EventEnqueued {
		t.Errorf("expected surviving listener to receive enqueued, got %v", got)
	}
}

func TestQueue_Unsubscribe(t *testing.T) {
	q := newTestQueue(t, Config{})

	calls := 0
	unsub := q.Subscribe(func(ev Event) { calls++ })

	_, _ = q.Enqueue(context.Background(), Item{Endpoint: "/a", Method: "POST"})
	unsub()
	_, _ = q.Enqueue(context.Background(), Item{Endpoint: "/b", Method: "POST"})

	if calls != 1 {
		t.Errorf("expected 1 call after unsubscribe, got %d", calls)
	}
}

func TestQueue_PersistsAcrossRestart(t *testing.T) {
	store := kv.NewMemory()
	ctx := context.Background()

	q1, err := New(Config{Store: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, _ = q1.Enqueue(ctx, Item{Endpoint: "/survives", Method: "POST", Priority: PriorityHigh})
	q1.Destroy()

	q2 := newTestQueue(t, Config{Store: store})
	items := q2.Items()
	if len(items) != 1 {
		t.Fatalf("expected 1 restored item, got %d", len(items))
	}
	if items[0].Endpoint != "/survives" || items[0].Priority != PriorityHigh {
		t.Errorf("restored item mismatch: %+v", items[0])
	}
}

func TestQueue_RestoreDiscardsCorruptState(t *testing.T) {
	store := kv.NewMemory()
	_ = store.Set(context.Background(), "offline_queue", "{corrupt")

	q := newTestQueue(t, Config{Store: store})
	if got := q.Stats().Total; got != 0 {
		t.Errorf("expected empty queue after corrupt restore, got %d", got)
	}
}

func TestQueue_RestoreDropsMalformedItems(t *testing.T) {
	store := kv.NewMemory()
	raw, _ := json.Marshal([]Item{
		{ID: "ok", Endpoint: "/good", Method: "POST", Priority: PriorityNormal},
		{ID: "no-endpoint", Method: "POST"},
		{Endpoint: "/no-id", Method: "POST"},
	})
	_ = store.Set(context.Background(), "offline_queue", string(raw))

	q := newTestQueue(t, Config{Store: store})
	items := q.Items()
	if len(items) != 1 || items[0].ID != "ok" {
		t.Errorf("expected only the valid item restored, got %+v", items)
	}
}

func TestQueue_Stats(t *testing.T) {
	q := newTestQueue(t, Config{})
	ctx := context.Background()

	_, _ = q.Enqueue(ctx, Item{Endpoint: "/a", Method: "POST", Priority: PriorityHigh})
	_, _ = q.Enqueue(ctx, Item{Endpoint: "/b", Method: "POST", Priority: PriorityHigh})
	_, _ = q.Enqueue(ctx, Item{Endpoint: "/c", Method: "POST", Priority: PriorityLow})

	stats := q.Stats()
	if stats.Total != 3 {
		t.Errorf("expected total 3, got %d", stats.Total)
	}
	if stats.ByPriority[PriorityHigh] != 2 || stats.ByPriority[PriorityLow] != 1 {
		t.Errorf("unexpected priority counts: %v", stats.ByPriority)
	}
	if stats.Oldest.IsZero() {
		t.Error("expected oldest timestamp")
	}
	if stats.Online {
		t.Error("expected offline queue")
	}
}

func TestQueue_DestroyedQueueRejectsWork(t *testing.T) {
	q, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	q.Destroy()

	if _, err := q.Enqueue(context.Background(), Item{Endpoint: "/x", Method: "POST"}); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed, got %v", err)
	}
	if err := q.Process(context.Background()); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed, got %v", err)
	}

	// Destroy is idempotent.
	q.Destroy()
}

// waitForEmpty polls until the queue is drained.
func waitForEmpty(t *testing.T, q *Queue) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q.Stats().Total == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("queue did not drain, %d items left", q.Stats().Total)
}

// waitFor polls until cond holds.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// waitForIdle polls until no drain is running.
func waitForIdle(t *testing.T, q *Queue) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := q.Stats()
		if !s.Draining {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("queue still draining")
}

func TestQueue_RemoveAndClear(t *testing.T) {
	store := kv.NewMemory()
	q := newTestQueue(t, Config{Store: store, PersistKey: "q"})

	a, _ := q.Enqueue(context.Background(), Item{Endpoint: "/a", Method: "POST"})
	b, _ := q.Enqueue(context.Background(), Item{Endpoint: "/b", Method: "POST"})

	var events []EventType
	q.Subscribe(func(ev Event) { events = append(events, ev.Type) })

	if err := q.Remove(context.Background(), a.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := q.Remove(context.Background(), a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for removed item, got %v", err)
	}
	if got := q.Stats().Total; got != 1 {
		t.Errorf("expected 1 item after remove, got %d", got)
	}
	if q.Items()[0].ID != b.ID {
		t.Error("wrong item removed")
	}

	if err := q.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := q.Stats().Total; got != 0 {
		t.Errorf("expected empty queue after clear, got %d", got)
	}

	// Clearing an empty queue is a no-op.
	if err := q.Clear(context.Background()); err != nil {
		t.Errorf("Clear on empty queue: %v", err)
	}

	want := []EventType{EventRemoved, EventCleared}
	if len(events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], events[i])
		}
	}

	// Both mutations persist through the store.
	raw, ok, err := store.Get(context.Background(), "q")
	if err != nil || !ok {
		t.Fatalf("store get: ok=%v err=%v", ok, err)
	}
	var items []Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		t.Fatalf("unmarshal persisted queue: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected empty persisted queue, got %d items", len(items))
	}
}

func TestQueue_EnqueueWhileOnlineDrainsImmediately(t *testing.T) {
	q := newTestQueue(t, Config{DrainInterval: time.Hour})
	processed := make(chan Item, 1)
	q.SetHandler(func(ctx context.Context, item Item) error {
		processed <- item
		return nil
	})

	q.SetOnline(true)
	waitForIdle(t, q)

	if _, err := q.Enqueue(context.Background(), Item{Endpoint: "/a", Method: "POST"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// The drain ticker is an hour out, so only the enqueue itself can
	// have started this drain.
	select {
	case item := <-processed:
		if item.Endpoint != "/a" {
			t.Errorf("unexpected item drained: %+v", item)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("item was not drained after enqueue while online")
	}
	waitForEmpty(t, q)
}

func TestQueue_StatsBreaksDownItemStates(t *testing.T) {
	q := newTestQueue(t, Config{DrainInterval: time.Hour})
	entered := make(chan struct{})
	release := make(chan struct{})
	q.SetHandler(func(ctx context.Context, item Item) error {
		if item.Priority == PriorityCritical {
			close(entered)
			<-release
		}
		return errors.New("replay failed")
	})

	ctx := context.Background()
	_, _ = q.Enqueue(ctx, Item{Endpoint: "/a", Method: "POST", Priority: PriorityCritical})
	_, _ = q.Enqueue(ctx, Item{Endpoint: "/b", Method: "POST"})

	q.SetOnline(true)
	<-entered

	stats := q.Stats()
	if stats.Total != 2 || stats.Processing != 1 || stats.Pending != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats during replay: %+v", stats)
	}
	if stats.Critical != 1 {
		t.Errorf("expected 1 critical item, got %d", stats.Critical)
	}

	close(release)
	waitFor(t, func() bool {
		s := q.Stats()
		return !s.Draining && s.Failed == 2
	})

	stats = q.Stats()
	if stats.Pending != 0 || stats.Processing != 0 {
		t.Errorf("expected only failed items after the drain, got %+v", stats)
	}
}

func TestQueue_RestoreDefaultsMissingTimestamp(t *testing.T) {
	store := kv.NewMemory()
	raw, _ := json.Marshal([]Item{{ID: "a", Endpoint: "/a", Method: "POST"}})
	_ = store.Set(context.Background(), "offline_queue", string(raw))

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	q := newTestQueue(t, Config{Store: store, Now: func() time.Time { return now }})

	items := q.Items()
	if len(items) != 1 {
		t.Fatalf("expected 1 restored item, got %d", len(items))
	}
	if !items[0].EnqueuedAt.Equal(now) {
		t.Errorf("expected missing timestamp defaulted to now, got %v", items[0].EnqueuedAt)
	}
	if got := q.Stats().Oldest; !got.Equal(now) {
		t.Errorf("expected oldest %v, got %v", now, got)
	}
}
