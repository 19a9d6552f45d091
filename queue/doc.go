// Package queue implements the durable offline request queue.
//
// Requests that cannot be sent while the network is down are enqueued
// with a priority and replayed in priority order once connectivity
// returns. The queue persists itself through a kv.Store on every
// mutation so a process restart does not lose pending writes.
//
//	q, err := queue.New(queue.Config{Store: store, Logger: log})
//	q.SetHandler(func(ctx context.Context, item queue.Item) error {
//	    return send(ctx, item)
//	})
//	q.Start()
//	defer q.Destroy()
//
//	item, err := q.Enqueue(ctx, queue.Item{
//	    Endpoint: "/orders",
//	    Method:   "POST",
//	    Payload:  body,
//	    Priority: queue.PriorityHigh,
//	})
package queue
