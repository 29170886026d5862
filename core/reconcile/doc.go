// Package reconcile compares the objects held by a bucket with the
// references that point at them from the document store.
//
// An Adapter supplies both sets, which the Engine builds concurrently.
// Matching is exact on the decoded object name:
//
//   - unused objects are present and referenced by nothing;
//   - dangling references name an object that is not present;
//   - unrecognized references match no URL pattern and never drive cleanup.
//
// Analyze is read-only. ApplyCleanup requires confirmation and an adapter
// that also implements Mutator. Reports are cached for a TTL, with
// concurrent requests sharing one analysis.
package reconcile
