// Package persistence implements the crash-safe key/value contract
// spec.md §4.4 requires: atomic per-key writes, a recovery scan on init,
// and namespace-scoped read/write/remove/list.
package persistence

import "context"

// ErrNotFound is returned by Read when no value exists for an entity id.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "persistence: entity not found" }

// Store is the abstract key/value contract the engine, risk gate, and
// oracle cache are written to. Namespace is a directory-style prefix
// (e.g. "signal/{strategyName}/{symbol}" or "risk/{riskName}/positions");
// entityId is opaque within that namespace.
type Store interface {
	// Read returns the raw bytes for entityId, or ErrNotFound.
	Read(ctx context.Context, namespace, entityID string) ([]byte, error)

	// Write atomically replaces (or creates) entityId's value. A
	// concurrent reader observes either the previous value or the new
	// one, never a partial write, never absence.
	Write(ctx context.Context, namespace, entityID string, value []byte) error

	// Remove deletes entityId. Removing a missing entity is not an error.
	Remove(ctx context.Context, namespace, entityID string) error

	// List returns every entityId currently stored under namespace.
	List(ctx context.Context, namespace string) ([]string, error)

	// Init scans every namespace the store has seen and repairs entries
	// that fail to deserialize, per the recovery contract of spec.md §4.4.
	// verify is called once per entity; a non-nil error marks it corrupt.
	Init(ctx context.Context, verify func(namespace, entityID string, value []byte) error) error
}
