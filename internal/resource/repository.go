package resource

import "context"

// Repository is the persistence contract the synthesized handlers use.
// Implementations run each mutation as one unit of work and leave the
// store unchanged when it fails.
type Repository[T any] interface {
	List(ctx context.Context) ([]T, error)
	// Get reports false with a nil error when id does not exist.
	Get(ctx context.Context, id int64) (*T, bool, error)
	// Create persists entity and fills in its primary key.
	Create(ctx context.Context, entity *T) error
	Save(ctx context.Context, entity *T) error
	Delete(ctx context.Context, entity *T) error
}
