// Package storage abstracts the object stores the pipeline reads from and
// writes to. Keys are always "/"-separated and relative to the store root.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("object not found")

	// ErrAccessTestCleanup means CheckAccess wrote its test object but could not
	// remove it. The store is writable.
	ErrAccessTestCleanup = errors.New("failed to remove access test object")
)

// Object describes a single stored object.
type Object struct {
	Key  string
	Size int64
}

// Store is the minimal object-store surface the pipeline needs.
type Store interface {
	// List returns every object under prefix, recursively, sorted by key.
	List(ctx context.Context, prefix string) ([]Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, body io.Reader, metadata map[string]string) error
	// DeletePrefix removes every object under prefix. Missing prefixes are not an error.
	DeletePrefix(ctx context.Context, prefix string) error
	CheckAccess(ctx context.Context) error
	URI(key string) string
}

// S3Options carries what is needed to open an S3-backed store.
type S3Options struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	ForcePathStyle  bool
}

// Open returns the Store backing loc.
func Open(loc Location, opts S3Options) (Store, error) {
	switch loc.Kind {
	case KindLocal:
		return NewLocalStore(loc.Path)
	case KindS3:
		sess, err := NewSession(opts)
		if err != nil {
			return nil, err
		}
		return NewS3Store(sess, loc.Bucket, loc.Prefix), nil
	default:
		return nil, fmt.Errorf("unsupported location kind %q", loc.Kind)
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(key, "/")
}
