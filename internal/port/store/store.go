// Package store defines the port interface for durable context storage.
// The store is a namespaced hash-map: one namespace per application
// definition, one field per installation id.
package store

import "context"

// Store is the port interface for the context store. Implementations must
// be safe for concurrent use.
type Store interface {
	// Get returns the value for id in the namespace. ok is false when the
	// field does not exist.
	Get(ctx context.Context, namespace, id string) (value []byte, ok bool, err error)
	// Set writes the value for id in the namespace.
	Set(ctx context.Context, namespace, id string, value []byte) error
	// Delete removes id from the namespace. Deleting an absent id is not
	// an error.
	Delete(ctx context.Context, namespace, id string) error
	// IDs enumerates every id present in the namespace.
	IDs(ctx context.Context, namespace string) ([]string, error)
}
