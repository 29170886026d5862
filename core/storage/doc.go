// Package storage provides the object store abstraction used by the asset
// copier and the reference reconciler.
//
// # Bucket
//
// Bucket is a named object store with List, Exists, Read, Write and Remove.
// Two implementations exist:
//
//   - MinioBucket wraps the Client interface around the MinIO Go client and
//     serves AWS S3 and self-hosted MinIO. It also implements BatchRemover
//     through the bulk delete API.
//   - GCSBucket talks to Google Cloud Storage, which also backs Firebase
//     Storage.
//
// # Client Interface
//
// Client abstracts the MinIO client so tests can mock it (see
// core/storage/mocks).
//
// # Errors
//
// Throttling, server and network failures are classified as transient;
// missing buckets and rejected credentials as configuration errors.
//
// # Usage
//
//	bucket, err := storage.Open(ctx, cfg.TargetStorage)
//	exists, err := bucket.Exists(ctx, "photos/a.jpg")
package storage
