package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/audit"
	"github.com/pressleaf/biblio/pkg/config"
	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/stats"
	"github.com/pressleaf/biblio/pkg/storage"
	"github.com/pressleaf/biblio/pkg/storage/postgres"
	"github.com/pressleaf/biblio/pkg/storage/sqlite"
)

var (
	rollupSchedule = flag.String("rollup-schedule", "5 0 * * *", "Cron schedule for the daily stats rollup (00:05 UTC)")
	sweepSchedule  = flag.String("sweep-schedule", "0 * * * *", "Cron schedule for the expired token sweep (hourly)")
	pruneSchedule  = flag.String("prune-schedule", "30 2 * * *", "Cron schedule for audit retention pruning (02:30 UTC)")
	runOnce        = flag.Bool("run-once", false, "Run every job once and exit")
	rollupDate     = flag.String("date", "", "Day to roll up (YYYY-MM-DD). Defaults to yesterday. Only used with -run-once")
)

const (
	// jobTimeout bounds a single scheduled job run.
	jobTimeout = 10 * time.Minute

	// lockTTL caps how long a crashed replica keeps a job locked.
	lockTTL = 15 * time.Minute
)

// backend is the slice of the storage layer the aggregator needs.
// Both SQL backends satisfy it.
type backend interface {
	api.Storage
	DB() *sql.DB
	Close() error
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "biblio-aggregator: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("component", "aggregator")

	store, err := openBackend(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	var redisClient *storage.RedisClient
	if cfg.Storage.RedisURL != "" {
		redisClient, err = storage.NewRedisClient(cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
	}

	var rollup *stats.Rollup
	if cfg.Stats.Enabled && redisClient != nil {
		dialect := stats.DialectSQLite
		if cfg.Storage.Type == "postgres" {
			dialect = stats.DialectPostgres
		}
		rollup, err = stats.NewRollup(redisClient.GetClient(), store.DB(), dialect, logger)
		if err != nil {
			return fmt.Errorf("failed to prepare stats rollup: %w", err)
		}
	}

	stores, closeStores, err := openAuditStores(cfg.Audit, cfg.Storage.Type, store.DB())
	if err != nil {
		return fmt.Errorf("failed to open audit stores: %w", err)
	}
	defer closeStores()

	j := &jobs{
		rollup:    rollup,
		catalog:   store,
		stores:    stores,
		retention: cfg.Audit.Retention,
		logger:    logger,
	}
	if redisClient != nil {
		j.locker = &locker{client: redisClient.GetClient(), logger: logger}
	}

	if *runOnce {
		return runAll(j, *rollupDate)
	}

	c := cron.New(cron.WithLocation(time.UTC))

	if j.rollup != nil {
		_, err = c.AddFunc(*rollupSchedule, func() {
			j.locked("stats-rollup", func(ctx context.Context) error {
				return j.rollupDay(ctx, time.Now().UTC().AddDate(0, 0, -1))
			})
		})
		if err != nil {
			return fmt.Errorf("failed to schedule stats rollup: %w", err)
		}
	}

	_, err = c.AddFunc(*sweepSchedule, func() {
		j.locked("token-sweep", j.sweepTokens)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule token sweep: %w", err)
	}

	if len(j.stores) > 0 && j.retention > 0 {
		_, err = c.AddFunc(*pruneSchedule, func() {
			j.locked("audit-prune", j.pruneAudit)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule audit prune: %w", err)
		}
	}

	c.Start()
	logger.WithFields(map[string]interface{}{
		"rollup_schedule": *rollupSchedule,
		"sweep_schedule":  *sweepSchedule,
		"prune_schedule":  *pruneSchedule,
	}).Info("Aggregator started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down, waiting for running jobs")
	stopCtx := c.Stop()
	<-stopCtx.Done()
	logger.Info("Aggregator stopped")
	return nil
}

// runAll executes every configured job once, for backfills and for
// verifying a deployment by hand.
func runAll(j *jobs, dateArg string) error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	day := time.Now().UTC().AddDate(0, 0, -1)
	if dateArg != "" {
		var err error
		day, err = time.Parse("2006-01-02", dateArg)
		if err != nil {
			return fmt.Errorf("invalid -date %q: %w", dateArg, err)
		}
	}

	if err := j.rollupDay(ctx, day); err != nil {
		return err
	}
	if err := j.sweepTokens(ctx); err != nil {
		return err
	}
	return j.pruneAudit(ctx)
}

// jobs bundles the maintenance tasks and their dependencies. Every job
// tolerates a concurrent or repeated run.
type jobs struct {
	rollup    *stats.Rollup
	catalog   api.Storage
	stores    []audit.Store
	retention time.Duration
	locker    *locker
	logger    *observability.Logger
}

// locked runs fn under the distributed job lock when one is
// configured. Logging the error here keeps the cron closures flat.
func (j *jobs) locked(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if j.locker != nil {
		if !j.locker.acquire(ctx, name) {
			j.logger.WithField("job", name).Debug("Another replica holds the job lock")
			return
		}
		defer j.locker.release(name)
	}

	if err := fn(ctx); err != nil {
		j.logger.WithError(err).WithField("job", name).Error("Scheduled job failed")
	}
}

func (j *jobs) rollupDay(ctx context.Context, day time.Time) error {
	if j.rollup == nil {
		return nil
	}
	if err := j.rollup.Run(ctx, day); err != nil {
		return fmt.Errorf("stats rollup for %s: %w", day.Format("2006-01-02"), err)
	}
	j.logger.WithField("day", day.Format("2006-01-02")).Info("Rolled up daily stats")
	return nil
}

func (j *jobs) sweepTokens(ctx context.Context) error {
	deleted, err := j.catalog.DeleteExpiredTokens(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("token sweep: %w", err)
	}
	if deleted > 0 {
		j.logger.WithField("deleted", deleted).Info("Deleted expired tokens")
	}
	return nil
}

func (j *jobs) pruneAudit(ctx context.Context) error {
	if len(j.stores) == 0 || j.retention <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-j.retention)
	for _, s := range j.stores {
		pruned, err := s.Prune(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("audit prune: %w", err)
		}
		if pruned > 0 {
			j.logger.WithField("pruned", pruned).Info("Pruned audit events")
		}
	}
	return nil
}

// locker keeps replicas from running the same job at the same time.
type locker struct {
	client *redis.Client
	logger *observability.Logger
}

func (l *locker) acquire(ctx context.Context, name string) bool {
	ok, err := l.client.SetNX(ctx, l.key(name), time.Now().UTC().Format(time.RFC3339), lockTTL).Result()
	if err != nil {
		// Every job tolerates a duplicate run, so a broken lock check
		// runs the job rather than skipping it.
		l.logger.WithError(err).WithField("job", name).Warn("Job lock check failed, running anyway")
		return true
	}
	return ok
}

func (l *locker) release(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.client.Del(ctx, l.key(name)).Err(); err != nil {
		l.logger.WithError(err).WithField("job", name).Warn("Failed to release job lock, it will expire")
	}
}

func (l *locker) key(name string) string {
	return "biblio:aggregator:lock:" + name
}

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

// openAuditStores opens the queryable audit stores named by
// cfg.Backend so their retention windows can be enforced. The caller
// must invoke the returned cleanup.
func openAuditStores(cfg config.AuditConfig, storageType string, db *sql.DB) ([]audit.Store, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}
	if cfg.Backend != "file" && cfg.Backend != "database" && cfg.Backend != "both" {
		return nil, nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}

	var stores []audit.Store
	var closers []func()

	if cfg.Backend == "file" || cfg.Backend == "both" {
		sink, err := audit.NewFileSink(audit.FileSinkConfig{
			Path:       cfg.FilePath,
			MaxSize:    cfg.MaxFileSize,
			MaxBackups: cfg.MaxBackups,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit file: %w", err)
		}
		stores = append(stores, sink)
		closers = append(closers, func() { sink.Close() })
	}

	if cfg.Backend == "database" || cfg.Backend == "both" {
		dialect := audit.DialectSQLite
		if storageType == "postgres" {
			dialect = audit.DialectPostgres
		}
		sink, err := audit.NewDBSink(db, dialect)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, fmt.Errorf("failed to open audit table: %w", err)
		}
		stores = append(stores, sink)
	}

	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}
	return stores, cleanup, nil
}
