package object

import (
	"context"
	"errors"
	"io"
)

// ErrNotExist is returned by Open when no object is stored under the key.
var ErrNotExist = errors.New("object not found")

// ObjectStore saves and retrieves blobs by key.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
