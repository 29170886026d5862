// Package config provides configuration management for the migrator.
//
// It utilizes Viper for loading configuration from environment variables,
// a .env file and an optional config.yaml.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Log, Server: logging and the HTTP surface
//   - Source, Target, Database: the tree store read and the document store written
//   - SourceStorage, TargetStorage: the buckets assets move between
//   - Batch, Migration, Assets, Dedup, Reconcile, Validation: per-stage settings
//
// Every scalar can be set from the environment (BATCH_SIZE, TARGET_URI,
// DEDUP_NATURAL_KEY, ...). Lists such as migration rules, dedup
// references or reconcile sources are read from config.yaml.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(config.Needs{Target: true}); err != nil {
//	    log.Fatal(err)
//	}
package config
