// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces, not on a concrete database.
package tx

import (
	"context"
)

// Manager runs work inside a store transaction.
//
// Number allocation and configuration changes run through RunInTransaction,
// so that row locks taken by the gap-free strategy are held until the
// enclosing transaction ends.
type Manager interface {
	// RunInTransaction executes fn within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls join the transaction already present in ctx, so the
	// caller's transaction decides when locks are released.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
