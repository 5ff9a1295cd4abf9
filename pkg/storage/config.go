package storage

import "time"

// Config for storage backend
type Config struct {
	Type string // "sqlite" or "postgres"

	// SQLite config
	SQLitePath string

	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Cache config
	CacheEnabled bool
	CacheTTL     map[string]time.Duration
	CacheSize    int // Max entries in the in-process LRU

	// Cover image config
	CoversBackend  string // "filesystem" or "s3"
	CoversRoot     string
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "sqlite",
		SQLitePath:       "biblio.db",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     true,
		CacheTTL: map[string]time.Duration{
			"book":        15 * time.Minute,
			"author":      15 * time.Minute,
			"book_list":   1 * time.Minute,
			"author_list": 1 * time.Minute,
			"post":        5 * time.Minute,
			"popular":     1 * time.Minute,
		},
		CacheSize:     4096,
		CoversBackend: "filesystem",
		CoversRoot:    "covers",
	}
}
