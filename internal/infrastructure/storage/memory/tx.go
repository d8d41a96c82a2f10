// Package memory provides an in-process implementation of the sequence
// store: configuration rows, row locks, transactions and counters.
package memory

import (
	"context"

	"docseq/internal/core/id"
	"docseq/internal/core/tx"
)

type txKey struct{}

// txn tracks undo actions and row locks of one transaction.
type txn struct {
	undo []func()
	held map[id.ID]lockKind
}

func txFrom(ctx context.Context) *txn {
	t, _ := ctx.Value(txKey{}).(*txn)
	return t
}

// TxManager implements tx.Manager for a Store.
type TxManager struct {
	store *Store
}

// Ensure compile-time interface compliance.
var _ tx.Manager = (*TxManager)(nil)

// RunInTransaction executes fn within a transaction. Nested calls join the
// outer transaction. On error or panic every row change made through the
// store is undone; counter advances are not.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	t := &txn{held: make(map[id.ID]lockKind)}
	defer func() {
		if p := recover(); p != nil {
			m.store.rollback(t)
			m.store.release(t)
			panic(p)
		}
		if err != nil {
			m.store.rollback(t)
		}
		m.store.release(t)
	}()

	return fn(context.WithValue(ctx, txKey{}, t))
}
