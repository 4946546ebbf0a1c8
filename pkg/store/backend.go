// Package store holds the durable key-value side of the order ledger: the
// backend contract every storage adapter implements, an in-process
// backend, and OrderStore, which keeps the order list and the id counter.
package store

import "context"

// Change is a storage event: another session wrote Value under Key.
type Change struct {
	Key     string
	Value   string
	Deleted bool
}

// Backend is one session's handle on a shared key-value store.
//
// Watch delivers changes made through other sessions to the watched keys.
// Whether a session also sees its own writes is backend specific; the
// ledger compares values before adopting them so both are safe. The
// returned channel is closed once ctx is done.
type Backend interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Watch(ctx context.Context, keys ...string) (<-chan Change, error)
}
