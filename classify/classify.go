package classify

import (
	"context"
	"errors"
	"strings"
)

// Kind identifies the failure category.
type Kind string

const (
	KindNetwork        Kind = "network"
	KindTimeout        Kind = "timeout"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindValidation     Kind = "validation"
	KindServer         Kind = "server"
	KindClient         Kind = "client"
	KindRateLimit      Kind = "rate-limit"
	KindUnknown        Kind = "unknown"
	// KindBreakerOpen is the synthetic condition produced when the
	// circuit breaker rejects a call without attempting it.
	KindBreakerOpen Kind = "breaker-open"
	// KindCancelled marks a caller-initiated cancellation. It is never
	// retryable and must not be counted as a service fault.
	KindCancelled Kind = "cancelled"
)

// Severity grades how serious a failure is for logging and display.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Classification is the tagged result of classifying one failure.
// It is a derived value: recomputed per failure, never persisted.
type Classification struct {
	Kind        Kind
	Retryable   bool
	Severity    Severity
	UserMessage string
	// StatusCode is the HTTP status that produced this classification,
	// or 0 when the failure never reached the server.
	StatusCode int
}

// StatusCoder is implemented by errors that carry an HTTP status code.
// transport.Error implements it; any error in the chain may.
type StatusCoder interface {
	HTTPStatusCode() int
}

// userMessages maps each kind to a stable, display-safe message.
var userMessages = map[Kind]string{
	KindNetwork:        "Network connection lost. Please check your internet connection.",
	KindTimeout:        "The request took too long. Please try again.",
	KindAuthentication: "Your session has expired. Please log in again.",
	KindAuthorization:  "You do not have permission to perform this action.",
	KindValidation:     "The request was invalid. Please check your input.",
	KindServer:         "Our servers are experiencing issues. Please try again later.",
	KindClient:         "The requested resource was not found.",
	KindRateLimit:      "Too many requests. Please wait a moment and try again.",
	KindUnknown:        "Something went wrong. Please try again.",
	KindBreakerOpen:    "The service is temporarily unavailable. Please try again shortly.",
	KindCancelled:      "The request was cancelled.",
}

// Keyword sets for message-based classification when no status code is
// available. Matching is case-insensitive substring.
var (
	networkKeywords = []string{
		"econnreset", "econnrefused", "connection refused", "connection reset",
		"network", "no such host", "unreachable", "broken pipe", "offline",
		"dns", "socket", "eof",
	}
	timeoutKeywords = []string{
		"timeout", "timed out", "deadline exceeded",
	}
	authKeywords = []string{
		"unauthorized", "authentication", "token expired", "invalid token",
		"session expired", "not authenticated",
	}
)

// Classify derives a Classification from a failure. It is pure, never
// panics, and always returns a displayable UserMessage. A nil error
// classifies as unknown.
func Classify(err error) Classification {
	if err == nil {
		return build(KindUnknown, false, SeverityLow, 0)
	}

	// Caller cancellation is not a service fault.
	if errors.Is(err, context.Canceled) {
		return build(KindCancelled, false, SeverityLow, 0)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return build(KindTimeout, true, SeverityMedium, 0)
	}

	if code, ok := statusCode(err); ok && code > 0 {
		return classifyStatus(code)
	}
	return classifyMessage(err.Error())
}

// BreakerOpen returns the stable classification for the synthetic
// breaker-open condition.
func BreakerOpen() Classification {
	return build(KindBreakerOpen, false, SeverityHigh, 0)
}

// MessageFor returns the stable user-facing message for a kind.
func MessageFor(kind Kind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}

func classifyStatus(code int) Classification {
	switch {
	case code >= 500:
		return build(KindServer, true, SeverityHigh, code)
	case code == 401:
		return build(KindAuthentication, false, SeverityHigh, code)
	case code == 403:
		return build(KindAuthorization, false, SeverityMedium, code)
	case code == 404:
		return build(KindClient, false, SeverityLow, code)
	case code == 408:
		return build(KindTimeout, true, SeverityMedium, code)
	case code == 429:
		return build(KindRateLimit, true, SeverityMedium, code)
	case code >= 400:
		return build(KindValidation, false, SeverityMedium, code)
	default:
		return build(KindUnknown, false, SeverityLow, code)
	}
}

func classifyMessage(msg string) Classification {
	lower := strings.ToLower(msg)

	if matchesAny(lower, timeoutKeywords) {
		return build(KindTimeout, true, SeverityMedium, 0)
	}
	if matchesAny(lower, networkKeywords) {
		return build(KindNetwork, true, SeverityMedium, 0)
	}
	if matchesAny(lower, authKeywords) {
		return build(KindAuthentication, false, SeverityHigh, 0)
	}
	return build(KindUnknown, false, SeverityLow, 0)
}

func matchesAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func statusCode(err error) (int, bool) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if sc, ok := e.(StatusCoder); ok {
			return sc.HTTPStatusCode(), true
		}
	}
	return 0, false
}

func build(kind Kind, retryable bool, sev Severity, code int) Classification {
	return Classification{
		Kind:        kind,
		Retryable:   retryable,
		Severity:    sev,
		UserMessage: MessageFor(kind),
		StatusCode:  code,
	}
}
