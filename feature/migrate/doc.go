// Package migrate moves the source tree into the document store.
//
// A Transformer turns the immediate children of a tree node into
// documents, lazily and in key order. A Batcher buffers the resulting
// operations and commits them in atomic, paced batches with retries. The
// Migrator wires both together for each configured collection.
//
// # Batching
//
//   - A full buffer is committed at once and followed by the pacing delay.
//   - One batch never holds two operations for the same document; a
//     repeated document commits the buffer first.
//   - Failed commits are retried with exponential backoff. Exhausted
//     retries abort the run; committed batches stay.
//   - Oversized or malformed operations are rejected by Enqueue.
//
// # Transformation
//
// Maps whose keys are all non-negative integers become lists ordered by
// numeric key, with gaps collapsed. Per-collection rules add the id as a
// field, turn key-set maps into lists of keys and keyed maps into lists of
// objects.
package migrate
