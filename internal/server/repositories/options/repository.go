package options

import "context"

// Repository reads and writes named option values.
type Repository interface {
	Get(ctx context.Context, name string) (string, error)
	Upsert(ctx context.Context, name, value string) error
	// InsertIfEmpty stores value when name is missing or holds an empty
	// string. It reports whether the write happened.
	InsertIfEmpty(ctx context.Context, name, value string) (bool, error)
}
