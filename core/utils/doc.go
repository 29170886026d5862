// Package utils provides common utility functions for the migrator.
// It includes helpers for loosely-typed value conversion (values read from
// JSON trees, BSON documents and SQL rows), emptiness checks used by the
// merge policy, and byte formatting for reports.
package utils
