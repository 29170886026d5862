package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"store-migrator/core/errs"

	"github.com/minio/minio-go/v7"
)

// MinioBucket adapts a Client to the Bucket interface.
type MinioBucket struct {
	client Client
	bucket string
}

// NewMinioBucket binds client to one bucket.
func NewMinioBucket(client Client, bucket string) *MinioBucket {
	return &MinioBucket{client: client, bucket: bucket}
}

// Name returns the bucket name.
func (b *MinioBucket) Name() string { return b.bucket }

// List returns every object under prefix, skipping folder placeholders.
func (b *MinioBucket) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, classifyMinioError("list "+b.bucket, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		objects = append(objects, ObjectInfo{Bucket: b.bucket, Name: obj.Key, Size: obj.Size})
	}
	return objects, nil
}

// Exists reports whether an object is present.
func (b *MinioBucket) Exists(ctx context.Context, name string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, name, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, classifyMinioError("stat "+name, err)
}

// Read opens an object for reading.
func (b *MinioBucket) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	rc, err := b.client.GetObject(ctx, b.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinioError("get "+name, err)
	}
	return rc, nil
}

// Write uploads an object.
func (b *MinioBucket) Write(ctx context.Context, name string, r io.Reader, size int64, meta Metadata) error {
	_, err := b.client.PutObject(ctx, b.bucket, name, r, size, minio.PutObjectOptions{
		CacheControl: meta.CacheControl,
		ContentType:  meta.ContentType,
	})
	return classifyMinioError("put "+name, err)
}

// Remove deletes an object.
func (b *MinioBucket) Remove(ctx context.Context, name string) error {
	err := b.client.RemoveObject(ctx, b.bucket, name, minio.RemoveObjectOptions{})
	return classifyMinioError("remove "+name, err)
}

// RemoveBatch deletes names with the bulk delete API.
func (b *MinioBucket) RemoveBatch(ctx context.Context, names []string) ([]RemoveFailure, error) {
	if len(names) == 0 {
		return nil, nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(names))
	for _, name := range names {
		objectsCh <- minio.ObjectInfo{Key: name}
	}
	close(objectsCh)

	var failures []RemoveFailure
	for rerr := range b.client.RemoveObjects(ctx, b.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			failures = append(failures, RemoveFailure{Name: rerr.ObjectName, Err: rerr.Err})
		}
	}
	if err := ctx.Err(); err != nil {
		return failures, err
	}
	return failures, nil
}

func classifyMinioError(op string, err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return errs.Transient(op, err)
	case resp.StatusCode == 0:
		// No HTTP response: the request never completed.
		return errs.Transient(op, err)
	case resp.Code == "NoSuchBucket", resp.Code == "AccessDenied", resp.Code == "InvalidAccessKeyId":
		return errs.FatalConfig(op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
