package tasks

import "context"

// Store is the task table adapter. Implementations return ErrNotFound for
// unknown ids.
type Store interface {
	List(ctx context.Context, f Filter) ([]Task, error)
	Create(ctx context.Context, t NewTask) (Task, error)
	Get(ctx context.Context, id string) (Task, error)
	Update(ctx context.Context, id string, c Changes) (Task, error)
	ApplyEnrichment(ctx context.Context, id string, e Enrichment) (Task, error)
	// Delete reports whether a row was removed.
	Delete(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (Stats, error)
}
