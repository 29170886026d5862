package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"store-migrator/core/errs"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSBucket implements Bucket on Google Cloud Storage, which also backs
// Firebase Storage.
type GCSBucket struct {
	client *gcs.Client
	handle *gcs.BucketHandle
	bucket string
}

// NewGCSBucket opens cfg.Bucket with the configured credentials, falling
// back to application default credentials.
func NewGCSBucket(ctx context.Context, cfg Config) (*GCSBucket, error) {
	if cfg.Bucket == "" {
		return nil, errs.FatalConfigf("gcs", "%w: bucket", errs.ErrMissingConfig)
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, errs.FatalConfig("gcs", fmt.Errorf("failed to create gcs client: %w", err))
	}

	return &GCSBucket{client: client, handle: client.Bucket(cfg.Bucket), bucket: cfg.Bucket}, nil
}

// Close releases the client.
func (b *GCSBucket) Close() error { return b.client.Close() }

// Name returns the bucket name.
func (b *GCSBucket) Name() string { return b.bucket }

// List returns every object under prefix, skipping folder placeholders.
func (b *GCSBucket) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := b.handle.Objects(ctx, &gcs.Query{Prefix: prefix})

	var objects []ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyGCSError("list "+b.bucket, err)
		}
		if attrs.Name == "" || attrs.Name[len(attrs.Name)-1] == '/' {
			continue
		}
		objects = append(objects, ObjectInfo{Bucket: b.bucket, Name: attrs.Name, Size: attrs.Size})
	}
	return objects, nil
}

// Exists reports whether an object is present.
func (b *GCSBucket) Exists(ctx context.Context, name string) (bool, error) {
	_, err := b.handle.Object(name).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, classifyGCSError("stat "+name, err)
	}
	return true, nil
}

// Read opens an object for reading.
func (b *GCSBucket) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := b.handle.Object(name).NewReader(ctx)
	if err != nil {
		return nil, classifyGCSError("get "+name, err)
	}
	return r, nil
}

// Write uploads an object. The write is conditional on the object not
// existing, so a concurrent copy never overwrites it.
func (b *GCSBucket) Write(ctx context.Context, name string, r io.Reader, _ int64, meta Metadata) error {
	w := b.handle.Object(name).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.CacheControl = meta.CacheControl
	w.ContentType = meta.ContentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return classifyGCSError("put "+name, err)
	}
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return nil
		}
		return classifyGCSError("put "+name, err)
	}
	return nil
}

// Remove deletes an object.
func (b *GCSBucket) Remove(ctx context.Context, name string) error {
	err := b.handle.Object(name).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return classifyGCSError("remove "+name, err)
}

func classifyGCSError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gcs.ErrBucketNotExist) {
		return errs.FatalConfig(op, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= 500:
			return errs.Transient(op, err)
		case apiErr.Code == http.StatusUnauthorized, apiErr.Code == http.StatusForbidden:
			return errs.FatalConfig(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return errs.Transient(op, err)
}
