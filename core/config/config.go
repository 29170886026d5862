package config

import (
	"errors"
	"reflect"
	"strings"

	"store-migrator/core/database"
	"store-migrator/core/docstore"
	"store-migrator/core/errs"
	"store-migrator/core/logger"
	"store-migrator/core/server"
	"store-migrator/core/storage"
	"store-migrator/core/treestore"
	"store-migrator/feature/assets"
	"store-migrator/feature/dedup"
	"store-migrator/feature/migrate"
	"store-migrator/feature/references"
	"store-migrator/feature/validate"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Database holds the SQL connection used when target.driver is sql.
	Database database.Config `mapstructure:"database"`
	// Source is the tree store read by the migration.
	Source treestore.Config `mapstructure:"source"`
	// Target is the document store written by every stage.
	Target docstore.Config `mapstructure:"target"`
	// SourceStorage is the bucket assets are copied from.
	SourceStorage storage.Config `mapstructure:"source_storage"`
	// TargetStorage is the bucket assets are copied to and reconciled.
	TargetStorage storage.Config `mapstructure:"target_storage"`
	// Batch tunes the rate-limited batcher.
	Batch migrate.BatchConfig `mapstructure:"batch"`
	// Migration lists the collections to migrate.
	Migration migrate.Config `mapstructure:"migration"`
	// Assets tunes the asset copier.
	Assets assets.Config `mapstructure:"assets"`
	// Dedup configures entity deduplication.
	Dedup dedup.Config `mapstructure:"dedup"`
	// Reconcile configures reference reconciliation.
	Reconcile references.Config `mapstructure:"reconcile"`
	// Validation configures post-migration checks.
	Validation validate.Config `mapstructure:"validate"`
}

// Needs names the stores a command uses, so Validate only checks those.
type Needs struct {
	Source        bool
	Target        bool
	SourceStorage bool
	TargetStorage bool
}

// LoadConfig loads configuration from environment variables, a .env file
// and an optional config.yaml in path. Environment variables win.
func LoadConfig(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	bindValues(v, Config{}, "")

	// List-shaped settings (rules, references, sources) live in config.yaml.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errs.FatalConfig("load config", err)
		}
	}

	// Map environment variables to nested keys (e.g. BATCH_SIZE -> batch.size)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errs.FatalConfig("load config", err)
	}

	config.Migration = config.Migration.WithDefaults()
	config.Dedup = config.Dedup.WithDefaults()
	config.Reconcile = config.Reconcile.WithDefaults()
	config.Reconcile.CacheTTL = config.Server.ReportTTL()

	return &config, nil
}

// Validate checks the settings of the stores in needs plus the batcher.
// Every failure is a fatal configuration error, reported before any write.
func (c *Config) Validate(needs Needs) error {
	var problems []string

	if c.Batch.Size <= 0 {
		problems = append(problems, "batch.size must be positive")
	}
	if c.Batch.MaxRetries < 0 {
		problems = append(problems, "batch.max_retries must not be negative")
	}

	if needs.Source {
		switch c.Source.Driver {
		case treestore.DriverRTDB:
			if c.Source.URL == "" {
				problems = append(problems, "source.url is required for the rtdb driver")
			}
		case treestore.DriverFile:
			if c.Source.Path == "" {
				problems = append(problems, "source.path is required for the file driver")
			}
		default:
			problems = append(problems, "source.driver must be rtdb or file")
		}
		for _, r := range c.Migration.Rules {
			if r.Collection == "" {
				problems = append(problems, "migration.rules entries need a collection")
			}
		}
	}

	if needs.Target {
		switch c.Target.Driver {
		case docstore.DriverMongo:
			if c.Target.URI == "" {
				problems = append(problems, "target.uri is required for the mongo driver")
			}
		case docstore.DriverSQL:
			if c.Database.Name == "" {
				problems = append(problems, "database.name is required for the sql driver")
			}
		default:
			problems = append(problems, "target.driver must be mongo or sql")
		}
	}

	if needs.SourceStorage && c.SourceStorage.Bucket == "" {
		problems = append(problems, "source_storage.bucket is required")
	}
	if needs.TargetStorage && c.TargetStorage.Bucket == "" {
		problems = append(problems, "target_storage.bucket is required")
	}
	if needs.SourceStorage && c.Assets.Concurrency <= 0 {
		problems = append(problems, "assets.concurrency must be positive")
	}

	if len(problems) > 0 {
		return errs.FatalConfigf("config", "%w: %s", errs.ErrMissingConfig, strings.Join(problems, "; "))
	}
	return nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		switch field.Type.Kind() {
		case reflect.Struct:
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		case reflect.Slice, reflect.Map:
			// Lists come from config.yaml only.
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
