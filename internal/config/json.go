package config

import (
	"encoding/json"
	"os"
	"time"

	"ticketkeeper/internal/flagx"
	"ticketkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "60s"
// or as integer nanoseconds.
type JsonConfig struct {
	DatabasePath string         `json:"database_path"`
	ArtifactName string         `json:"artifact_name"`
	MaxRetries   *int           `json:"max_retries"`
	SyncInterval timex.Duration `json:"sync_interval"`
	S3Endpoint   string         `json:"s3_endpoint"`
	S3Region     string         `json:"s3_region"`
	S3Bucket     string         `json:"s3_bucket"`
	S3Prefix     string         `json:"s3_prefix"`
}

// parseJson overlays cfg with values from the JSON file named by the -c or
// -config flag. Absent flag means no JSON is loaded. Read or unmarshal
// failures panic; intended usage is defaults -> parseJson -> parseEnv ->
// parseFlags, where later stages override earlier ones.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.ArtifactName != "" {
		cfg.ArtifactName = jc.ArtifactName
	}
	if jc.MaxRetries != nil {
		cfg.MaxRetries = *jc.MaxRetries
	}
	if jc.SyncInterval.Duration != 0 {
		cfg.SyncInterval = time.Duration(jc.SyncInterval.Duration)
	}
	if jc.S3Endpoint != "" {
		cfg.S3Endpoint = jc.S3Endpoint
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3Bucket != "" {
		cfg.S3Bucket = jc.S3Bucket
	}
	if jc.S3Prefix != "" {
		cfg.S3Prefix = jc.S3Prefix
	}
}
