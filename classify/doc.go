// Package classify turns raw request failures into stable, tagged
// classifications that the rest of the stack can act on.
//
// A Classification carries the failure kind, whether it is worth
// retrying, a severity for logging/alerting, and a user-facing message
// that is always safe to display directly. Classification is a pure
// function of the error: it is computed once per failure and threaded
// through the retry, recovery, and client layers instead of each layer
// re-inspecting the error ad hoc.
//
//	cls := classify.Classify(err)
//	if cls.Retryable {
//	    // route through the recovery pipeline
//	}
//	show(cls.UserMessage)
package classify
