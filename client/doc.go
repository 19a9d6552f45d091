// Package client provides the unified API client: a single entry point
// that composes the transport, circuit breaker, retry, offline queue,
// response cache, token handling, and the recovery pipeline.
//
// The zero-effort path:
//
//	c, err := client.New(client.Config{BaseURL: "https://api.example.com"})
//	if err != nil { ... }
//	defer c.Destroy()
//
//	res := c.Get(ctx, "/orders", nil)
//	if res.Queued {
//	    // accepted for replay once back online
//	}
//	if !res.Success {
//	    show(res.UserMessage)
//	}
//
// Every call returns a Result rather than a bare error so callers get
// the classified kind, a user-presentable message, and the queued flag
// in one place.
package client
