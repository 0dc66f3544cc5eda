package port

import "context"

// TxScope exposes accessors bound to one store transaction.
type TxScope interface {
	Stock() StockLedger
	Events() EventRecords
}

type Transactor interface {
	// WithinTx runs fn in a single atomic transaction. fn may be invoked more
	// than once when the store reports a transient conflict, so it must not
	// keep side effects outside the scope between attempts.
	WithinTx(ctx context.Context, fn func(ctx context.Context, scope TxScope) error) error
}
