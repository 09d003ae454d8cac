package realtime

import "context"

// Source opens row-change subscriptions. Each call to Subscribe returns an
// independent subscription owned by the caller.
type Source interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription delivers change events in backend order. The Events channel is
// closed after Close or when the subscription fails for good.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}
