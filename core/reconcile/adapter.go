package reconcile

import (
	"context"

	"store-migrator/core/storage"
)

// Adapter loads the two sets compared by the engine.
type Adapter interface {
	// Name identifies the adapter in logs and cache keys.
	Name() string

	// LoadObjects lists the objects of the bucket under reconciliation.
	// Implementations list once per prefix and avoid per-object calls.
	LoadObjects(ctx context.Context) ([]storage.ObjectInfo, error)

	// LoadReferences scans the configured document collections and
	// returns every URL-like value with its decoded object name.
	LoadReferences(ctx context.Context) ([]Reference, error)
}

// Mutator is implemented by adapters that can apply a cleanup.
type Mutator interface {
	// DeleteObjects removes objects by name and reports those it could not.
	DeleteObjects(ctx context.Context, names []string) ([]storage.RemoveFailure, error)

	// FixReferences applies the dangling policy of each reference and
	// returns how many were fixed.
	FixReferences(ctx context.Context, refs []Reference) (int, error)
}
