// Package transaction runs application code inside a storage transaction
// without the application layer knowing which database is underneath.
package transaction

import "context"

// Scope commits when fn returns nil and rolls back otherwise. The ctx passed
// to fn carries the transaction for repositories to pick up.
type Scope interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

func ExecuteWithResult[T any](ctx context.Context, scope Scope, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := scope.Execute(ctx, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}
