// Package txn defines the transaction boundary used by domain services.
package txn

import "context"

// Transactor runs fn inside a single database transaction. The transaction
// is carried in the returned context, so repository calls made with that
// context join it. If fn returns an error the transaction is rolled back;
// otherwise it is committed. Nested calls join the outer transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Noop is a Transactor that runs fn directly, without any transaction.
// Intended for tests of services whose repositories are in-memory fakes.
type Noop struct{}

// InTx implements Transactor.
func (Noop) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
