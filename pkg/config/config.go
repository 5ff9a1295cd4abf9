package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Authentication configuration
	Auth AuthConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Single sign-on configuration
	SSO SSOConfig

	// Read statistics configuration
	Stats StatsConfig

	// Audit logging configuration
	Audit AuditConfig

	// Outbound webhook configuration
	Webhooks WebhooksConfig

	// Observability configuration
	Observability ObservabilityConfig

	// ConfigFile is the overlay file LoadConfig applied, empty when
	// configuration came from the environment alone.
	ConfigFile string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	// TokenTTL is how long issued API tokens stay valid. Zero means
	// tokens never expire.
	TokenTTL time.Duration

	// BcryptCost is the work factor for password hashing.
	BcryptCost int

	// RegistrationOpen controls whether POST /auth/register is accepted.
	RegistrationOpen bool
}

// RateLimitConfig holds request throttling settings
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int

	// Distributed switches from per-process token buckets to the
	// Redis-backed limiter shared across replicas.
	Distributed bool
}

// SSOConfig holds OpenID Connect settings
type SSOConfig struct {
	OIDCEnabled      bool
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string
	OIDCScopes       []string
}

// StatsConfig holds read-statistics settings
type StatsConfig struct {
	Enabled bool
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	Enabled bool

	// Backend selects where events go: "file", "database", or "both".
	Backend string

	FilePath    string
	MaxFileSize int64
	MaxBackups  int

	// Retention is how long database audit rows are kept before the
	// aggregator prunes them.
	Retention time.Duration
}

// WebhooksConfig holds outbound webhook settings
type WebhooksConfig struct {
	Enabled bool

	// HistorySize caps the in-memory delivery history.
	HistorySize int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables, then
// overlays the optional YAML file named by BIBLIO_CONFIG_FILE.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		RateLimit:     loadRateLimitConfig(),
		SSO:           loadSSOConfig(),
		Stats:         loadStatsConfig(),
		Audit:         loadAuditConfig(),
		Webhooks:      loadWebhooksConfig(),
		Observability: loadObservabilityConfig(),
	}

	if path := getEnv("BIBLIO_CONFIG_FILE", ""); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, fmt.Errorf("failed to apply config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("BIBLIO_HOST", "0.0.0.0"),
		Port:            getEnv("BIBLIO_PORT", "8080"),
		ReadTimeout:     getEnvDuration("BIBLIO_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("BIBLIO_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("BIBLIO_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("BIBLIO_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("BIBLIO_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// Storage type
	if storageType := getEnv("BIBLIO_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}

	// SQLite config
	if sqlitePath := getEnv("BIBLIO_SQLITE_PATH", ""); sqlitePath != "" {
		cfg.SQLitePath = sqlitePath
	}

	// PostgreSQL config
	if pgURL := getEnv("BIBLIO_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("BIBLIO_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("BIBLIO_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("BIBLIO_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("BIBLIO_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// Redis config
	if redisURL := getEnv("BIBLIO_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("BIBLIO_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("BIBLIO_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("BIBLIO_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("BIBLIO_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Cache config
	if cacheEnabled := getEnv("BIBLIO_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if cacheSize := getEnvInt("BIBLIO_CACHE_SIZE", 0); cacheSize > 0 {
		cfg.CacheSize = cacheSize
	}

	// Cover image config
	if coversBackend := getEnv("BIBLIO_COVERS_BACKEND", ""); coversBackend != "" {
		cfg.CoversBackend = coversBackend
	}
	if coversRoot := getEnv("BIBLIO_COVERS_ROOT", ""); coversRoot != "" {
		cfg.CoversRoot = coversRoot
	}
	if s3Endpoint := getEnv("BIBLIO_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("BIBLIO_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("BIBLIO_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("BIBLIO_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("BIBLIO_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("BIBLIO_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	return cfg
}

// loadAuthConfig loads authentication configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		TokenTTL:         getEnvDuration("BIBLIO_TOKEN_TTL", 30*24*time.Hour),
		BcryptCost:       getEnvInt("BIBLIO_BCRYPT_COST", 10),
		RegistrationOpen: getEnvBool("BIBLIO_REGISTRATION_OPEN", true),
	}
}

// loadRateLimitConfig loads rate limit configuration from environment
func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           getEnvBool("BIBLIO_RATE_LIMIT_ENABLED", true),
		RequestsPerMinute: getEnvInt("BIBLIO_RATE_LIMIT_PER_MINUTE", 120),
		Burst:             getEnvInt("BIBLIO_RATE_LIMIT_BURST", 20),
		Distributed:       getEnvBool("BIBLIO_RATE_LIMIT_DISTRIBUTED", false),
	}
}

// loadSSOConfig loads OIDC configuration from environment
func loadSSOConfig() SSOConfig {
	return SSOConfig{
		OIDCEnabled:      getEnvBool("BIBLIO_OIDC_ENABLED", false),
		OIDCIssuer:       getEnv("BIBLIO_OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("BIBLIO_OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("BIBLIO_OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:  getEnv("BIBLIO_OIDC_REDIRECT_URL", ""),
		OIDCScopes:       splitCSV(getEnv("BIBLIO_OIDC_SCOPES", "openid,profile,email")),
	}
}

// loadStatsConfig loads read-statistics configuration from environment
func loadStatsConfig() StatsConfig {
	return StatsConfig{
		Enabled: getEnvBool("BIBLIO_STATS_ENABLED", true),
	}
}

// loadAuditConfig loads audit configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:     getEnvBool("BIBLIO_AUDIT_ENABLED", true),
		Backend:     getEnv("BIBLIO_AUDIT_BACKEND", "file"),
		FilePath:    getEnv("BIBLIO_AUDIT_FILE", "audit.log"),
		MaxFileSize: getEnvInt64("BIBLIO_AUDIT_MAX_FILE_SIZE", 100*1024*1024),
		MaxBackups:  getEnvInt("BIBLIO_AUDIT_MAX_BACKUPS", 5),
		Retention:   getEnvDuration("BIBLIO_AUDIT_RETENTION", 90*24*time.Hour),
	}
}

// loadWebhooksConfig loads outbound webhook configuration from environment
func loadWebhooksConfig() WebhooksConfig {
	return WebhooksConfig{
		Enabled:     getEnvBool("BIBLIO_WEBHOOKS_ENABLED", false),
		HistorySize: getEnvInt("BIBLIO_WEBHOOKS_HISTORY_SIZE", 1000),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	cfg := ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("BIBLIO_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("BIBLIO_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("BIBLIO_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("BIBLIO_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("BIBLIO_OTEL_SERVICE_NAME", "biblio"),
		OTelServiceVersion: getEnv("BIBLIO_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("BIBLIO_OTEL_INSECURE", true),
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be sqlite or postgres)", c.Storage.Type)
	}

	// Validate cover storage config
	switch c.Storage.CoversBackend {
	case "filesystem":
		if c.Storage.CoversRoot == "" {
			return fmt.Errorf("covers root is required for filesystem cover storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" || c.Storage.S3Region == "" {
			return fmt.Errorf("S3 bucket and region are required for s3 cover storage")
		}
	default:
		return fmt.Errorf("invalid covers backend: %s (must be filesystem or s3)", c.Storage.CoversBackend)
	}

	// Validate auth config
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 4 and 31")
	}

	// Validate rate limit config
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate limit requests per minute must be positive")
		}
		if c.RateLimit.Distributed && c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for distributed rate limiting")
		}
	}

	// Validate SSO config
	if c.SSO.OIDCEnabled {
		if c.SSO.OIDCIssuer == "" {
			return fmt.Errorf("OIDC issuer is required when OIDC is enabled")
		}
		if c.SSO.OIDCClientID == "" {
			return fmt.Errorf("OIDC client ID is required when OIDC is enabled")
		}
		if c.SSO.OIDCRedirectURL == "" {
			return fmt.Errorf("OIDC redirect URL is required when OIDC is enabled")
		}
	}

	// Validate audit config
	if c.Audit.Enabled {
		switch c.Audit.Backend {
		case "file", "both":
			if c.Audit.FilePath == "" {
				return fmt.Errorf("audit file path is required for file audit logging")
			}
		case "database":
			// Stored through the primary storage backend
		default:
			return fmt.Errorf("invalid audit backend: %s (must be file, database, or both)", c.Audit.Backend)
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string, defaulting to info
func parseLogLevel(level string) observability.LogLevel {
	lvl, err := observability.ParseLevel(level)
	if err != nil {
		return observability.InfoLevel
	}
	return lvl
}

// splitCSV splits a comma-separated list, trimming whitespace and
// dropping empty entries
func splitCSV(value string) []string {
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
