package storage

import (
	"context"
	"io"

	"store-migrator/core/errs"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Name   string `json:"name" yaml:"name"`
	Size   int64  `json:"size" yaml:"size"`
}

// Metadata is attached to an object on upload.
type Metadata struct {
	CacheControl string
	ContentType  string
}

// Bucket is a named object store.
type Bucket interface {
	// Name returns the bucket name.
	Name() string
	// List returns every object whose name starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Exists reports whether an object is present.
	Exists(ctx context.Context, name string) (bool, error)
	// Read opens an object for reading.
	Read(ctx context.Context, name string) (io.ReadCloser, error)
	// Write uploads an object.
	Write(ctx context.Context, name string, r io.Reader, size int64, meta Metadata) error
	// Remove deletes an object. Removing a missing object is not an error.
	Remove(ctx context.Context, name string) error
}

// RemoveFailure records one object a batch removal could not delete.
type RemoveFailure struct {
	Name string
	Err  error
}

// BatchRemover is implemented by buckets with a bulk delete API.
type BatchRemover interface {
	RemoveBatch(ctx context.Context, names []string) ([]RemoveFailure, error)
}

// RemoveAll deletes names, using the bulk API when the bucket has one.
func RemoveAll(ctx context.Context, b Bucket, names []string) ([]RemoveFailure, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if br, ok := b.(BatchRemover); ok {
		return br.RemoveBatch(ctx, names)
	}

	var failures []RemoveFailure
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		if err := b.Remove(ctx, name); err != nil {
			failures = append(failures, RemoveFailure{Name: name, Err: err})
		}
	}
	return failures, nil
}

// Open builds the Bucket described by cfg.
func Open(ctx context.Context, cfg Config) (Bucket, error) {
	switch cfg.Provider {
	case "", ProviderMinio:
		client, err := NewClient(cfg)
		if err != nil {
			return nil, err
		}
		if err := CheckBucket(ctx, client, cfg.Bucket); err != nil {
			return nil, err
		}
		return NewMinioBucket(client, cfg.Bucket), nil
	case ProviderGCS:
		return NewGCSBucket(ctx, cfg)
	default:
		return nil, errs.FatalConfigf("storage", "unsupported provider %q", cfg.Provider)
	}
}
