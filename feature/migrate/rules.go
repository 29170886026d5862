package migrate

// DefaultCreatedField is stamped on documents that lack it.
const DefaultCreatedField = "createdAt"

// DefaultRules describe the collections migrated when none are configured.
func DefaultRules() []Rule {
	return []Rule{
		{Collection: "users"},
		{Collection: "usernames", ScalarField: "userId", CreatedField: DisabledField},
		{
			Collection:      "posts",
			IDField:         "postId",
			KeySetFields:    []string{"likes"},
			KeyedListFields: map[string]string{"comments": "commentId"},
		},
	}
}

// Config holds the migration settings.
type Config struct {
	// CreatedField is stamped on documents lacking it. Empty disables it.
	CreatedField string `mapstructure:"created_field" default:"createdAt"`
	// Rules list the collections to migrate, in order.
	Rules []Rule `mapstructure:"rules"`
}

// WithDefaults fills an empty rule list with DefaultRules.
func (c Config) WithDefaults() Config {
	if len(c.Rules) == 0 {
		c.Rules = DefaultRules()
	}
	return c
}
