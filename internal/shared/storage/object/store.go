package object

import (
	"context"
	"errors"
	"io"
)

// ErrInvalidKey is returned for storage keys that escape the store root.
var ErrInvalidKey = errors.New("invalid storage key")

// Object describes a stored upload.
type Object struct {
	Key         string
	Size        int64
	ContentType string
}

// ObjectStore defines the contract for saving and retrieving uploaded documents.
type ObjectStore interface {
	Save(ctx context.Context, principal string, fileName string, r io.Reader) (Object, error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, storageKey string) error
}
