// Package storage provides the persistence backends for the biblio
// catalog: books, authors, libraries, blog posts, comments, users and
// API tokens.
//
// # Backends
//
// Two backends implement the api.Storage interface:
//
//   - sqlite: a single-file database, the default. Suited to
//     development and small single-node deployments.
//   - postgres: primary plus optional read replicas, for production.
//
// The backend is selected through Config.Type:
//
//	cfg := storage.DefaultConfig()
//	cfg.Type = "postgres"
//	cfg.PostgresURL = "postgres://localhost/biblio"
//	cfg.PostgresReplicaURLs = "postgres://replica1/biblio,postgres://replica2/biblio"
//
// With replicas configured, writes and read-your-writes lookups (fresh
// tokens, post-insert read-backs) go to the primary and everything else
// round-robins across healthy replicas.
//
// # Caching
//
// CachedStorage wraps any api.Storage with a Redis read-through cache
// for books, authors and posts, including list pages and counts:
//
//	redis, err := storage.NewRedisClient(cfg)
//	if err != nil {
//		return err
//	}
//	store = storage.NewCachedStorage(store, redis, cfg.CacheTTL, logger)
//
// Redis failures degrade reads to the database. Users, tokens and
// library shelves are never cached, so permission and revocation
// changes take effect on the next request.
//
// The RedisClient is shared infrastructure: the same client backs the
// cache, the rate limiter and the stats counters.
//
// # Health
//
// Every backend exposes Ping for liveness probes. The postgres backend
// additionally runs a background health check loop that drops replicas
// that stop answering and keeps serving reads from the primary.
//
// # Testing
//
// The sqlite backend doubles as the in-memory test harness for
// storage-level behavior (":memory:" databases are cheap to create per
// test). The postgres backend is tested against sqlmock, and the cache
// against miniredis, so the full suite runs without external services.
// Integration tests under tests/integration exercise a real PostgreSQL
// through testcontainers.
package storage
