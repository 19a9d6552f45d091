package kv

import "context"

// Store is a minimal string key-value store. Get reports whether the
// key existed; a missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
