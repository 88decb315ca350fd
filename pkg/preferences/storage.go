package preferences

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("no preferences are saved for the key")

// Storage is a key-value storage of serialized preferences.
type Storage interface {
	// Load returns ErrNotFound if nothing is saved for the key.
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}
