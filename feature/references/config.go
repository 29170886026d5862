package references

import (
	"time"

	"store-migrator/core/reconcile"
)

// Source names document fields that may hold object URLs. When
// SubCollection is set, the fields are read from the sub-collection of
// every document of Collection instead.
type Source struct {
	Collection    string                   `mapstructure:"collection" yaml:"collection"`
	SubCollection string                   `mapstructure:"sub_collection" yaml:"sub_collection"`
	Fields        []string                 `mapstructure:"fields" yaml:"fields"`
	OnDangling    reconcile.DanglingPolicy `mapstructure:"on_dangling" yaml:"on_dangling"`
}

// Label identifies the source in reports.
func (s Source) Label() string {
	if s.SubCollection == "" {
		return s.Collection
	}
	return s.Collection + "/" + s.SubCollection
}

// Config configures reconciliation of the target bucket.
type Config struct {
	Enabled    bool                 `mapstructure:"enabled" default:"true"`
	Sources    []Source             `mapstructure:"sources"`
	Patterns   []string             `mapstructure:"patterns"`
	Categories []reconcile.Category `mapstructure:"categories"`
	// Scoped limits the object set to the category prefixes.
	Scoped bool `mapstructure:"scoped" default:"false"`
	// Heuristic adds containment warnings to reports.
	Heuristic bool `mapstructure:"heuristic" default:"false"`
	// CacheTTL is how long a served report is reused. It is taken from
	// the server settings; zero disables caching.
	CacheTTL time.Duration
}

// DefaultSources are the reference fields of the migrated app.
func DefaultSources() []Source {
	return []Source{
		{Collection: "photos", Fields: []string{"url"}, OnDangling: reconcile.DeleteDocument},
		{Collection: "users", Fields: []string{"photoUrl", "photoURL"}, OnDangling: reconcile.DeleteFields},
		{Collection: "chats", SubCollection: "messages", Fields: []string{"fileUrl"}, OnDangling: reconcile.DeleteDocument},
	}
}

// DefaultCategories classify the bucket's top-level folders.
func DefaultCategories() []reconcile.Category {
	return []reconcile.Category{
		{Prefix: "photos/", Name: "photo"},
		{Prefix: "user_photos/", Name: "user_photo"},
		{Prefix: "chat_images/", Name: "chat_image"},
		{Prefix: "chat_files/", Name: "chat_file"},
	}
}

// WithDefaults fills empty lists with the defaults.
func (c Config) WithDefaults() Config {
	if len(c.Sources) == 0 {
		c.Sources = DefaultSources()
	}
	if len(c.Patterns) == 0 {
		c.Patterns = DefaultPatterns
	}
	if len(c.Categories) == 0 {
		c.Categories = DefaultCategories()
	}
	return c
}
