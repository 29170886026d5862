package dedup

import (
	"time"
)

// ReferenceKind says how a foreign key is stored.
type ReferenceKind string

const (
	// KindArray is a list of ids, such as chat participants.
	KindArray ReferenceKind = "array"
	// KindScalar is a single id, such as a message sender.
	KindScalar ReferenceKind = "scalar"
)

// ReferenceRule names a field in dependent collections that may hold an
// entity id. Collection may be a pattern: "chat_*" matches collection
// names by prefix and "chats/*/messages" matches sub-collections.
type ReferenceRule struct {
	Collection string        `mapstructure:"collection" yaml:"collection"`
	Field      string        `mapstructure:"field" yaml:"field"`
	Kind       ReferenceKind `mapstructure:"kind" yaml:"kind"`
}

// Config describes one deduplication pass.
type Config struct {
	// Collection holds the entities.
	Collection string `mapstructure:"collection" default:"users"`
	// NaturalKey is the field identifying the same real-world entity.
	NaturalKey string `mapstructure:"natural_key" default:"email"`
	// ActivityFields are recency signals, most significant first.
	ActivityFields []string `mapstructure:"activity_fields"`
	// CreatedField is the fallback recency signal.
	CreatedField string `mapstructure:"created_field" default:"createdAt"`
	// IdentityField, when set, must equal the document id.
	IdentityField string `mapstructure:"identity_field" default:"uid"`
	// References lists the foreign keys rewritten to the survivor.
	References []ReferenceRule `mapstructure:"references"`
	// DryRun plans every group without writing.
	DryRun bool `mapstructure:"dry_run" default:"false"`
	// ListRetries bounds the retries of a failed collection listing.
	ListRetries int `mapstructure:"list_retries" default:"3"`
}

// DefaultActivityFields is used when none are configured.
var DefaultActivityFields = []string{"lastLogin"}

// DefaultReferences are the foreign keys rewritten when none are configured.
func DefaultReferences() []ReferenceRule {
	return []ReferenceRule{
		{Collection: "chats", Field: "participants", Kind: KindArray},
		{Collection: "chat_*", Field: "senderId", Kind: KindScalar},
	}
}

// Candidate is one member of a group.
type Candidate struct {
	ID      string
	Fields  map[string]any
	Recency time.Time
}

// Group holds the candidates sharing a natural key, in listing order.
type Group struct {
	Key        string
	Candidates []Candidate
}

// GroupResult is the outcome of one group.
type GroupResult struct {
	Key          string   `json:"key" yaml:"key"`
	Survivor     string   `json:"survivor" yaml:"survivor"`
	Deleted      []string `json:"deleted" yaml:"deleted"`
	MergedFields []string `json:"merged_fields,omitempty" yaml:"merged_fields,omitempty"`
	Rewritten    int      `json:"rewritten" yaml:"rewritten"`
	Error        string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Stats summarizes a deduplication pass.
type Stats struct {
	Documents           int           `json:"documents" yaml:"documents"`
	Groups              int           `json:"groups" yaml:"groups"`
	Processed           int           `json:"processed" yaml:"processed"`
	Merged              int           `json:"merged" yaml:"merged"`
	Skipped             int           `json:"skipped" yaml:"skipped"`
	Deleted             int           `json:"deleted" yaml:"deleted"`
	ReferencesRewritten int           `json:"references_rewritten" yaml:"references_rewritten"`
	Warnings            []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Results             []GroupResult `json:"results" yaml:"results"`
	DryRun              bool          `json:"dry_run" yaml:"dry_run"`
	Duration            time.Duration `json:"duration" yaml:"duration"`
}

// WithDefaults fills empty lists with their defaults.
func (c Config) WithDefaults() Config {
	if len(c.ActivityFields) == 0 {
		c.ActivityFields = DefaultActivityFields
	}
	if len(c.References) == 0 {
		c.References = DefaultReferences()
	}
	return c
}
