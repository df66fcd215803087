// Package config assembles runtime settings for the ticketkeeper CLI.
// Sources are layered: defaults, then JSON file, then environment, then
// command-line flags; later sources take precedence.
package config

import "time"

// Config holds runtime settings.
//
// S3 credentials intentionally have no flag or JSON form: they arrive via the
// environment only (optionally through a .env file loaded in main).
type Config struct {
	DatabasePath string
	ArtifactName string
	MaxRetries   int
	SyncInterval time.Duration

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "tickets.db"
	c.ArtifactName = "tickets.json"
	c.MaxRetries = 3
	c.SyncInterval = 60 * time.Second
	c.S3Region = "us-east-1"
	c.S3Bucket = "ticketkeeper"
	c.S3Prefix = "records"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), the environment, and command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
