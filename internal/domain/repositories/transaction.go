package repositories

import (
	"context"
)

// TxFn is a function executed within a transaction.
type TxFn func(ctx context.Context) error

// TransactionManager runs a function inside a single database transaction.
// The transaction travels in the context; repositories pick it up through
// their executor.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}
