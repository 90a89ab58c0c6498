package outbound

import "context"

// TransactionManager runs a function inside one storage transaction. The
// transaction travels through the context the function receives, so
// repository calls made with that context participate transparently and
// either all commit or all roll back.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
