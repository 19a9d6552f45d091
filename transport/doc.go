// Package transport defines the wire interface the unified client sends
// requests through, plus the default net/http implementation.
//
// Transport implementations return *Error for failed requests so the
// layers above (retry, breaker, classifier) can read the HTTP status
// without knowing the implementation.
package transport
