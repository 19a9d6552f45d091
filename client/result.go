package client

import (
	"encoding/json"
	"fmt"

	"github.com/kbukum/apikit/classify"
	"github.com/kbukum/apikit/queue"
)

// Result is the outcome of a client call. Success and Queued are
// mutually exclusive: a queued request was accepted for later replay
// but has not completed.
type Result struct {
	// Success means a response body was obtained, live or from cache.
	Success bool
	// StatusCode is the HTTP status when a live response was received.
	StatusCode int
	// Data is the response body.
	Data []byte
	// FromCache marks data served from the response cache.
	FromCache bool
	// Queued means the request is waiting in the offline queue.
	Queued bool
	// Item is the queued item when Queued is set.
	Item *queue.Item
	// Kind classifies the failure when Success is false.
	Kind classify.Kind
	// UserMessage is safe to present to an end user.
	UserMessage string
	// Err is the underlying error when Success is false.
	Err error
}

// Decode unmarshals the response body into v.
func (r Result) Decode(v any) error {
	if !r.Success {
		if r.Err != nil {
			return r.Err
		}
		return fmt.Errorf("client: no response data")
	}
	return json.Unmarshal(r.Data, v)
}

// successResult builds a successful live-response result.
func successResult(status int, data []byte) Result {
	return Result{Success: true, StatusCode: status, Data: data}
}

// cachedResult builds a successful cache-served result.
func cachedResult(data []byte) Result {
	return Result{Success: true, Data: data, FromCache: true}
}

// queuedMessage is the stable user-facing text for every queued
// outcome, whichever path accepted the request.
const queuedMessage = "You're offline. The request was saved and will be sent automatically."

// queuedResult builds the accepted-not-completed result.
func queuedResult(item queue.Item) Result {
	return Result{
		Queued:      true,
		Item:        &item,
		Kind:        classify.KindNetwork,
		UserMessage: queuedMessage,
	}
}

// outcomeOf names a result's outcome for telemetry.
func outcomeOf(r Result) string {
	switch {
	case r.Queued:
		return "queued"
	case r.Success:
		return "success"
	default:
		return "failed"
	}
}

// failResult builds a failure result from a classification.
func failResult(err error, class classify.Classification) Result {
	return Result{
		StatusCode:  class.StatusCode,
		Kind:        class.Kind,
		UserMessage: class.UserMessage,
		Err:         err,
	}
}
