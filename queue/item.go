package queue

import (
	"encoding/json"
	"time"
)

// Priority orders queued items. Higher priorities drain first; within a
// priority, items drain in enqueue order.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// rank maps priorities to sort order, lowest first. Unknown priorities
// are treated as normal.
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// ConflictPolicy is carried with a queued write and handed to the
// replay handler unchanged. The queue itself never interprets it;
// conflict resolution belongs to the server or the handler.
type ConflictPolicy string

const (
	ConflictOverwrite ConflictPolicy = "overwrite"
	ConflictMerge     ConflictPolicy = "merge"
	ConflictSkip      ConflictPolicy = "skip"
)

// Item is one queued request.
type Item struct {
	ID             string            `json:"id"`
	Endpoint       string            `json:"endpoint"`
	Method         string            `json:"method"`
	Payload        json.RawMessage   `json:"payload,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Priority       Priority          `json:"priority"`
	ConflictPolicy ConflictPolicy    `json:"conflict_policy,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	EnqueuedAt     time.Time         `json:"enqueued_at"`
	Attempt        int               `json:"attempt"`
	MaxAttempts    int               `json:"max_attempts"`
}

// valid reports whether a persisted item is complete enough to replay.
func (i Item) valid() bool {
	return i.ID != "" && i.Endpoint != "" && i.Method != ""
}
