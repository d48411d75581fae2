// Package storage defines the blob storage abstraction used for the sitemap
// index file. Backends live in the local, gcs and memory subpackages.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by GetObject when the object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore persists generated files under slash-separated object paths.
type BlobStore interface {
	// PutObject writes data to path and returns a backend specific URI.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject returns the full object content or ErrObjectNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
	// ObjectExists reports whether path holds an object.
	ObjectExists(ctx context.Context, path string) (bool, error)
	// DeletePrefix removes every object under prefix. Missing objects are not an error.
	DeletePrefix(ctx context.Context, prefix string) error
}
