package reconcile

import (
	"time"

	"store-migrator/core/storage"
)

// DanglingPolicy says how a dangling reference is fixed during cleanup.
type DanglingPolicy string

const (
	// DeleteDocument removes the document holding the reference.
	DeleteDocument DanglingPolicy = "delete_document"
	// DeleteFields removes only the referencing field.
	DeleteFields DanglingPolicy = "delete_fields"
)

// Reference is one URL-like value found in a document.
type Reference struct {
	// URL is the raw field value.
	URL string `json:"url" yaml:"url"`
	// Source is the configured source the reference was found through,
	// e.g. "chats/messages".
	Source string `json:"source" yaml:"source"`
	// Collection is the full collection path of the owning document.
	Collection string `json:"collection" yaml:"collection"`
	DocID      string `json:"doc_id" yaml:"doc_id"`
	Field      string `json:"field" yaml:"field"`

	// Bucket and Object are the decoded location. Object is empty when
	// the URL matched no known pattern.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Object string `json:"object,omitempty" yaml:"object,omitempty"`

	OnDangling DanglingPolicy `json:"on_dangling,omitempty" yaml:"on_dangling,omitempty"`
}

// Recognized reports whether the URL was decoded to an object name.
func (r Reference) Recognized() bool {
	return r.Object != ""
}

// Category maps an object name prefix to a report category.
type Category struct {
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	Name   string `mapstructure:"name" yaml:"name"`
}

// OtherCategory holds objects matching no configured prefix.
const OtherCategory = "other"

// CategoryReport aggregates objects of one category.
type CategoryReport struct {
	Category    string `json:"category" yaml:"category"`
	Objects     int    `json:"objects" yaml:"objects"`
	Bytes       int64  `json:"bytes" yaml:"bytes"`
	Unused      int    `json:"unused" yaml:"unused"`
	UnusedBytes int64  `json:"unused_bytes" yaml:"unused_bytes"`
}

// CollectionReport aggregates references of one source.
type CollectionReport struct {
	Source       string `json:"source" yaml:"source"`
	References   int    `json:"references" yaml:"references"`
	Dangling     int    `json:"dangling" yaml:"dangling"`
	Unrecognized int    `json:"unrecognized" yaml:"unrecognized"`
}

// Report is the read-only outcome of an analysis.
type Report struct {
	Bucket      string    `json:"bucket" yaml:"bucket"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	Objects     int   `json:"objects" yaml:"objects"`
	ObjectBytes int64 `json:"object_bytes" yaml:"object_bytes"`
	References  int   `json:"references" yaml:"references"`

	// Unused objects are present in the bucket and referenced by nothing.
	Unused      []storage.ObjectInfo `json:"unused" yaml:"unused"`
	UnusedBytes int64                `json:"unused_bytes" yaml:"unused_bytes"`
	// Dangling references name objects the bucket does not hold.
	Dangling []Reference `json:"dangling" yaml:"dangling"`
	// Unrecognized references match no URL pattern or point at another
	// bucket. They never drive cleanup.
	Unrecognized []Reference `json:"unrecognized" yaml:"unrecognized"`
	// Warnings come from the containment heuristic only.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	ByCategory   []CategoryReport   `json:"by_category" yaml:"by_category"`
	ByCollection []CollectionReport `json:"by_collection" yaml:"by_collection"`

	Duration time.Duration `json:"duration" yaml:"duration"`
}

// CleanupOptions controls ApplyCleanup.
type CleanupOptions struct {
	// DryRun prevents any mutation.
	DryRun bool
	// Confirmed must be set for anything to be deleted.
	Confirmed bool
	// DeleteObjects removes unused objects.
	DeleteObjects bool
	// FixReferences applies each dangling reference's policy.
	FixReferences bool
}

// CleanupStats summarizes an applied cleanup.
type CleanupStats struct {
	ObjectsRemoved    int      `json:"objects_removed" yaml:"objects_removed"`
	BytesRemoved      int64    `json:"bytes_removed" yaml:"bytes_removed"`
	ObjectFailures    []string `json:"object_failures,omitempty" yaml:"object_failures,omitempty"`
	ReferencesFixed   int      `json:"references_fixed" yaml:"references_fixed"`
	ReferencesSkipped int      `json:"references_skipped" yaml:"references_skipped"`
	DryRun            bool     `json:"dry_run" yaml:"dry_run"`
}
