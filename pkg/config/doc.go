// Package config loads application configuration from BIBLIO_*
// environment variables, optionally overlaid by a YAML file, with
// defaults that bring up a working server on sqlite with no
// configuration at all.
//
// # Configuration structure
//
// Server settings:
//
//	BIBLIO_HOST="0.0.0.0"
//	BIBLIO_PORT="8080"
//	BIBLIO_HEALTH_PORT="9090"
//	BIBLIO_READ_TIMEOUT="15s"
//	BIBLIO_WRITE_TIMEOUT="15s"
//	BIBLIO_SHUTDOWN_TIMEOUT="30s"
//
// Storage settings:
//
//	BIBLIO_STORAGE_TYPE="sqlite"   # sqlite, postgres
//	BIBLIO_SQLITE_PATH="biblio.db"
//	BIBLIO_POSTGRES_URL="postgres://localhost/biblio"
//	BIBLIO_POSTGRES_REPLICA_URLS=""  # comma separated
//	BIBLIO_COVERS_BACKEND="filesystem"  # filesystem, s3
//	BIBLIO_S3_BUCKET="biblio-covers"
//
// Cache and stats settings:
//
//	BIBLIO_CACHE_ENABLED="false"
//	BIBLIO_REDIS_URL="redis://localhost:6379"
//	BIBLIO_STATS_ENABLED="true"
//
// Auth settings:
//
//	BIBLIO_BCRYPT_COST="10"
//	BIBLIO_TOKEN_TTL="0"  # zero means API tokens without expiry never expire
//	BIBLIO_REGISTRATION_OPEN="true"
//	BIBLIO_OIDC_ENABLED="false"
//
// Audit and webhook settings:
//
//	BIBLIO_AUDIT_ENABLED="false"
//	BIBLIO_AUDIT_BACKEND="file"  # file, database, both
//	BIBLIO_WEBHOOKS_ENABLED="false"
//
// Observability settings:
//
//	BIBLIO_LOG_LEVEL="info"  # debug, info, warn, error
//	BIBLIO_METRICS_ENABLED="true"
//	BIBLIO_OTEL_ENABLED="false"
//	BIBLIO_OTEL_ENDPOINT="localhost:4317"
//
// # File overlay
//
// BIBLIO_CONFIG_FILE names a YAML file applied over the environment.
// Only keys present in the file override; the file can be watched so a
// changed log_level takes effect without a restart.
//
// # Usage
//
// LoadConfig validates before returning, so a non-nil Config is ready
// to use:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
