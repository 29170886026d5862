// Package assets copies binary objects between buckets.
//
// The Copier lists the source bucket, skips every object already present
// in the target and copies the rest in fixed windows of concurrent
// transfers, pausing between windows. Each transfer stages the object in a
// temporary file that is removed whatever the outcome, then uploads it
// under the same name with a cache-control policy. A failed object is
// recorded in CopyStats and never stops the run.
package assets
