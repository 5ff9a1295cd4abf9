package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/async"
	"github.com/pressleaf/biblio/pkg/audit"
	"github.com/pressleaf/biblio/pkg/auth"
	"github.com/pressleaf/biblio/pkg/config"
	"github.com/pressleaf/biblio/pkg/covers"
	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/middleware"
	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/rbac"
	"github.com/pressleaf/biblio/pkg/search"
	"github.com/pressleaf/biblio/pkg/sso"
	"github.com/pressleaf/biblio/pkg/stats"
	"github.com/pressleaf/biblio/pkg/storage"
	"github.com/pressleaf/biblio/pkg/storage/postgres"
	"github.com/pressleaf/biblio/pkg/storage/sqlite"
	"github.com/pressleaf/biblio/pkg/swagger"
	"github.com/pressleaf/biblio/pkg/webhooks"
)

// version is stamped at build time via -ldflags.
var version = "dev"

const (
	// maxRequestBytes bounds JSON bodies and cover uploads alike.
	maxRequestBytes = 10 << 20

	// roleCacheTTL is how long permission checks may use a cached role.
	roleCacheTTL = 30 * time.Second
)

// backend is the concrete store surface the binary wires up: the full
// storage interface plus the search catalog and the raw DB handle the
// audit sink and the health checks go through.
type backend interface {
	api.Storage
	search.Catalog
	DB() *sql.DB
	Close() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "biblio: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithFields(map[string]interface{}{
		"version": version,
		"storage": cfg.Storage.Type,
	}).Info("Starting biblio")

	var configWatcher *config.Watcher
	if cfg.ConfigFile != "" {
		configWatcher, err = config.WatchLogLevel(cfg.ConfigFile, logger)
		if err != nil {
			logger.WithError(err).Warn("Config file watch failed to start")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openBackend(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	var redisClient *storage.RedisClient
	if cfg.Storage.RedisURL != "" {
		redisClient, err = storage.NewRedisClient(cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("Redis connected")
	}

	var catalog api.Storage = store
	if redisClient != nil && cfg.Storage.CacheEnabled {
		catalog = storage.NewCachedStorage(store, redisClient, cfg.Storage.CacheTTL, logger)
		logger.Info("Read-through cache enabled")
	}

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	var dispatcher *webhooks.Dispatcher
	var bridge audit.Sink
	if cfg.Webhooks.Enabled {
		dispatcher = webhooks.NewDispatcher(cfg.Webhooks.HistorySize, logger)
		dispatcher.Start(ctx)
		bridge = webhooks.NewAuditBridge(dispatcher)
		logger.Info("Webhook dispatcher started")
	}

	recorder, auditStore, err := buildAudit(ctx, cfg.Audit, cfg.Storage.Type, store.DB(), bridge, logger)
	if err != nil {
		return err
	}

	tokens := auth.NewManager(catalog)
	checker := rbac.NewChecker(catalog, 0, roleCacheTTL, logger)

	var tracker *stats.Tracker
	var statsPool *async.WorkerPool
	if cfg.Stats.Enabled && redisClient != nil {
		statsPool = async.NewWorkerPool(ctx, 2, 1024, "stats updates", 5*time.Second, logger)
		tracker = stats.NewTracker(redisClient.GetClient(), statsPool, logger)
	}

	opts := api.Options{
		Tokens:             tokens,
		Checker:            checker,
		BcryptCost:         cfg.Auth.BcryptCost,
		TokenTTL:           cfg.Auth.TokenTTL,
		RegistrationClosed: !cfg.Auth.RegistrationOpen,
		Logger:             logger,
	}
	if tracker != nil {
		opts.Usage = tracker
	}
	if auditStore != nil {
		opts.AuditStore = auditStore
	}
	srv := api.NewServer(catalog, opts)

	coverStore, err := covers.NewStore(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to open cover store: %w", err)
	}
	coverHandlers := covers.NewHandlers(coverStore, catalog, checker, logger)
	srv.RegisterAPI(coverHandlers)
	if cfg.Storage.CoversBackend == "" || cfg.Storage.CoversBackend == "filesystem" {
		coverHandlers.RegisterFileRoutes(srv.Router())
	}

	srv.RegisterAPI(search.NewHandlers(search.NewService(store, logger), tracker, logger))
	srv.RegisterAPI(stats.NewHandlers(tracker, catalog, logger))
	if dispatcher != nil {
		srv.RegisterAPI(webhooks.NewHandlers(dispatcher, checker))
	}

	if cfg.SSO.OIDCEnabled {
		provider, err := sso.NewProvider(ctx, sso.Options{
			Issuer:       cfg.SSO.OIDCIssuer,
			ClientID:     cfg.SSO.OIDCClientID,
			ClientSecret: cfg.SSO.OIDCClientSecret,
			RedirectURL:  cfg.SSO.OIDCRedirectURL,
			Scopes:       cfg.SSO.OIDCScopes,
		})
		if err != nil {
			return fmt.Errorf("failed to configure OIDC: %w", err)
		}
		srv.RegisterRoutes(sso.NewHandlers(provider, catalog, tokens, logger))
		logger.WithField("issuer", cfg.SSO.OIDCIssuer).Info("SSO enabled")
	}

	var redisConn *redis.Client
	if redisClient != nil {
		redisConn = redisClient.GetClient()
	}
	healthChecker := observability.NewHealthChecker(store.DB(), redisConn, version)
	observability.RegisterHealthRoutes(srv.Router(), healthChecker)
	srv.RegisterRoutes(swagger.NewHandlers())

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
		srv.Router().Handle("/metrics", observability.Handler(registry)).Methods("GET")
	}

	handler := buildHandler(srv, cfg, recorder, metrics, redisClient, providers, logger)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := newHealthServer(cfg.Server, healthChecker, registry)

	sm := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	sm.Register("health server", healthServer.Shutdown)
	sm.Register("storage", func(context.Context) error { return store.Close() })
	if redisClient != nil {
		sm.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	if recorder != nil {
		sm.Register("audit recorder", func(context.Context) error { return recorder.Close() })
	}
	if statsPool != nil {
		sm.Register("stats pool", func(context.Context) error { return statsPool.Shutdown(5 * time.Second) })
	}
	if dispatcher != nil {
		sm.Register("webhook dispatcher", func(context.Context) error { dispatcher.Stop(); return nil })
	}
	if providers != nil {
		sm.Register("otel", func(shutdownCtx context.Context) error {
			return observability.ShutdownOTel(shutdownCtx, providers, logger)
		})
	}
	if configWatcher != nil {
		sm.Register("config watcher", func(context.Context) error { return configWatcher.Close() })
	}

	go func() {
		logger.Infof("Listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server failed")
		}
	}()
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	return sm.WaitForShutdown()
}

// openBackend picks the storage implementation named by cfg.Type.
func openBackend(cfg storage.Config, logger *observability.Logger) (backend, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlite.New(cfg.SQLitePath)
	case "postgres":
		return postgres.New(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// buildAudit assembles the audit trail per cfg.Backend, with the
// webhook bridge appended as one more sink when wired. The bridge keeps
// webhooks flowing even when the audit trail itself is disabled. The
// returned store serves the admin search endpoint and is nil when no
// queryable sink is configured.
func buildAudit(ctx context.Context, cfg config.AuditConfig, storageType string, db *sql.DB, bridge audit.Sink, logger *observability.Logger) (*audit.Recorder, audit.Store, error) {
	var sinks []audit.Sink
	var store audit.Store

	if cfg.Enabled {
		switch cfg.Backend {
		case "file", "database", "both":
		default:
			return nil, nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
		}

		if cfg.Backend == "file" || cfg.Backend == "both" {
			fileSink, err := audit.NewFileSink(audit.FileSinkConfig{
				Path:       cfg.FilePath,
				MaxSize:    cfg.MaxFileSize,
				MaxBackups: cfg.MaxBackups,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
			}
			sinks = append(sinks, fileSink)
			store = fileSink
		}
		if cfg.Backend == "database" || cfg.Backend == "both" {
			dialect := audit.DialectSQLite
			if storageType == "postgres" {
				dialect = audit.DialectPostgres
			}
			dbSink, err := audit.NewDBSink(db, dialect)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to prepare audit table: %w", err)
			}
			sinks = append(sinks, dbSink)
			// The database is the better query side when both are on.
			store = dbSink
		}
	}
	if bridge != nil {
		sinks = append(sinks, bridge)
	}
	if len(sinks) == 0 {
		return nil, nil, nil
	}

	sink := sinks[0]
	if len(sinks) > 1 {
		sink = audit.NewMultiSink(sinks...)
	}
	pool := async.NewWorkerPool(ctx, 2, 256, "audit writes", 5*time.Second, logger)
	return audit.NewRecorder(sink, pool, logger), store, nil
}

// buildHandler stacks the request middleware around the router. The
// audit middleware sits innermost so every layer above it, the
// authenticator included, can record events.
func buildHandler(srv *api.Server, cfg *config.Config, recorder *audit.Recorder, metrics *observability.Metrics, redisClient *storage.RedisClient, providers *observability.OTelProviders, logger *observability.Logger) http.Handler {
	var handler http.Handler = srv
	if recorder != nil {
		handler = audit.Middleware(recorder)(handler)
	}
	if metrics != nil {
		handler = observability.HTTPMetricsMiddleware(metrics)(handler)
	}
	if cfg.RateLimit.Enabled {
		handler = newRateLimiter(cfg.RateLimit, redisClient, logger).Handler(handler)
	}
	handler = httputil.MaxBytesMiddleware(maxRequestBytes)(handler)
	handler = httputil.ContentTypeMiddleware(handler)
	handler = httputil.CORSMiddleware([]string{"*"})(handler)
	handler = httputil.RecoveryMiddleware(logger)(handler)
	handler = httputil.LoggingMiddleware(logger)(handler)
	handler = httputil.RequestIDMiddleware(handler)
	if providers != nil {
		handler = otelhttp.NewHandler(handler, "biblio")
	}
	return handler
}

// newRateLimiter builds the throttling middleware from config. The
// distributed limiter needs Redis; without it the per-process one is
// the best available.
func newRateLimiter(cfg config.RateLimitConfig, redisClient *storage.RedisClient, logger *observability.Logger) *middleware.RateLimitMiddleware {
	if cfg.Distributed && redisClient != nil {
		return middleware.NewRedisRateLimitMiddleware(redisClient.GetClient(), logger)
	}

	anon := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RequestsPerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         cfg.Burst,
	}
	// Authenticated callers get ten times the anonymous budget.
	user := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RequestsPerMinute * 10,
		WindowDuration:    time.Minute,
		BurstSize:         cfg.Burst * 10,
	}
	return middleware.NewRateLimitMiddleware(
		middleware.NewMemoryRateLimiter(user),
		middleware.NewMemoryRateLimiter(anon),
		logger,
	)
}

// newHealthServer serves the probes and metrics on their own port so
// they stay reachable when the API port is saturated.
func newHealthServer(cfg config.ServerConfig, checker *observability.HealthChecker, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
	mux.Handle("/metrics", observability.Handler(registry))
	return &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.HealthPort),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
