// Package validate checks a finished migration: source child counts
// against target document counts, plus a field-level diff of sampled
// documents.
package validate
