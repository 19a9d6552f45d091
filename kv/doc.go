// Package kv provides the small key-value storage abstraction behind the
// offline queue and the token store.
//
// Three implementations cover the deployment spectrum: Memory for tests
// and ephemeral use, File for single-process durable storage, and Redis
// for shared storage. All of them store opaque strings; callers own the
// serialization.
//
//	store := kv.NewMemory()
//	if err := store.Set(ctx, "token", raw); err != nil { ... }
//	val, ok, err := store.Get(ctx, "token")
package kv
