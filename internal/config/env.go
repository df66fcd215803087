package config

import "os"

// parseEnv overlays cfg with TICKETKEEPER_* environment variables. The .env
// file, if any, is loaded by main before this runs.
func parseEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	set(&cfg.DatabasePath, "TICKETKEEPER_DATABASE_PATH")
	set(&cfg.ArtifactName, "TICKETKEEPER_ARTIFACT_NAME")
	set(&cfg.S3Endpoint, "TICKETKEEPER_S3_ENDPOINT")
	set(&cfg.S3Region, "TICKETKEEPER_S3_REGION")
	set(&cfg.S3Bucket, "TICKETKEEPER_S3_BUCKET")
	set(&cfg.S3Prefix, "TICKETKEEPER_S3_PREFIX")
	set(&cfg.S3AccessKey, "TICKETKEEPER_S3_ACCESS_KEY")
	set(&cfg.S3SecretKey, "TICKETKEEPER_S3_SECRET_KEY")
}
