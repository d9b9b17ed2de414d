// Package config loads pregen settings from file, environment and flags.
package config

import "time"

// Default configuration values.
const (
	// DefaultManifestPath is where scan writes and generate/report read.
	DefaultManifestPath = "manifest.json"

	DefaultScale   = 200
	DefaultCadence = 1.0
	DefaultQuality = 85

	DefaultStrategy = "auto"

	DefaultReportFormat = "pretty"
	DefaultMissingLimit = 100
	DefaultStaleAfter   = 24 * time.Hour

	DefaultPrefix      = "attachments"
	DefaultEventsTopic = "pregen.thumbnails"

	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 200 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
)

// Storage kinds accepted by storage.kind.
const (
	KindS3    = "s3"
	KindLocal = "local"
)

// envAliases binds the plain S3_* variables used by existing deployments.
var envAliases = map[string]string{
	"storage.s3.endpoint":   "S3_ENDPOINT",
	"storage.s3.bucket":     "S3_BUCKET",
	"storage.s3.prefix":     "S3_PREFIX",
	"storage.s3.access_key": "S3_ACCESS_KEY",
	"storage.s3.secret_key": "S3_SECRET_KEY",
	"storage.s3.region":     "S3_REGION",
}
