package service

import "context"

// TransactionManager defines the interface for transaction management.
// Services use this to wrap multiple repository operations in a single transaction.
type TransactionManager interface {
	// WithTransaction executes fn within a database transaction, joining the
	// one already carried by ctx if there is one. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
