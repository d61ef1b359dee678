package secrets

import (
	"context"
	"errors"
)

// ErrAbsent is returned by Backend.Read when no value, or an empty one, is
// stored under the key.
var ErrAbsent = errors.New("secret absent")

// Backend persists opaque values by key. Read and Write must each be atomic
// per key.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
}

// Initializer is implemented by backends that can store a value only when
// the key is absent or empty, as a single atomic step visible to every
// process sharing the backend. It returns the value stored after the call,
// which is either value or whatever another writer stored first.
type Initializer interface {
	CreateIfAbsent(ctx context.Context, key string, value []byte) ([]byte, error)
}
