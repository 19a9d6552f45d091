// Package recovery chains the strategies the unified client tries when
// a request fails: token refresh and replay, cached response fallback,
// offline enqueue, bounded auto-retry, and finally a user prompt.
//
// Strategies run in that fixed order and the first one that produces a
// usable outcome wins. Each strategy only fires when it applies to the
// failure's classification and when the caller wired the hook it needs.
package recovery
