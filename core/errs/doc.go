// Package errs defines the error taxonomy shared by every engine component.
//
// # Kinds
//
//   - Transient: network or quota failures, retried with backoff by the batcher and the asset copier.
//   - Validation: an oversized payload or malformed reference. Fails one item; the run continues.
//   - FatalConfig: missing or invalid configuration. Aborts before any write.
//   - Consistency: data that disagrees across stores. Reported, never auto-resolved.
//
// Per-item failures stay inside their unit of work. Only exhausted transient
// retries and configuration errors escalate to abort a run.
//
// # Usage
//
//	if err := batcher.Enqueue(ctx, op); errs.IsValidation(err) {
//	    logger.Warn("skipping document", zap.Error(err))
//	}
package errs
