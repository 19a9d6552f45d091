// Package resilience provides the fault-tolerance primitives behind the
// unified client.
//
// This package includes:
//   - CircuitBreaker: fails fast while a dependency is unhealthy
//   - Retry: retries transient failures with configurable backoff
//   - RateLimiter: controls request rate with a token bucket
//   - IdempotencyKey: stable keys for safe replay of queued writes
//
// The patterns compose; the breaker typically wraps the retry loop so a
// tripped circuit stops retries immediately:
//
//	cb := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("api"))
//	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 100, Burst: 20})
//
//	err := cb.Execute(func() error {
//	    return rl.ExecuteWait(ctx, func() error {
//	        return resilience.RetryFunc(ctx, resilience.DefaultRetryConfig(), send)
//	    })
//	})
package resilience
