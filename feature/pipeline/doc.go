// Package pipeline runs the migration stages in order under one run id:
// migrate, validate, copy assets, deduplicate, then reconcile.
package pipeline
