package assets

import "time"

// Config holds the asset copy settings.
type Config struct {
	Enabled      bool   `mapstructure:"enabled" default:"true"`
	Prefix       string `mapstructure:"prefix" default:""`
	Concurrency  int    `mapstructure:"concurrency" default:"10"`
	PacingMillis int    `mapstructure:"pacing_ms" default:"1000"`
	CacheControl string `mapstructure:"cache_control" default:"public, max-age=31536000"`
	TempDir      string `mapstructure:"temp_dir" default:""`
	MaxRetries   int    `mapstructure:"max_retries" default:"3"`
	DryRun       bool   `mapstructure:"dry_run" default:"false"`
}

// Options converts the configuration into copy options.
func (c Config) Options() CopyOptions {
	return CopyOptions{
		Prefix:       c.Prefix,
		Concurrency:  c.Concurrency,
		Pacing:       time.Duration(c.PacingMillis) * time.Millisecond,
		CacheControl: c.CacheControl,
		TempDir:      c.TempDir,
		MaxRetries:   c.MaxRetries,
		DryRun:       c.DryRun,
	}
}
