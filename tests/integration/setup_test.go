//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/auth"
	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/rbac"
	"github.com/pressleaf/biblio/pkg/storage"
	"github.com/pressleaf/biblio/pkg/storage/postgres"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

// startPostgres runs a disposable PostgreSQL container and opens the
// store against it, schema included. Tests skip when no container
// runtime is available.
func startPostgres(t *testing.T) *postgres.Store {
	t.Helper()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("no container runtime available, skipping integration tests")
	}
	provider.Close()

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("biblio_test"),
		tcpostgres.WithUsername("biblio"),
		tcpostgres.WithPassword("biblio_test_password"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		// Fresh context: the test's own context may already be done.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := postgres.New(storage.Config{
		Type:             "postgres",
		PostgresURL:      connStr,
		PostgresMaxConns: 5,
		PostgresMinConns: 1,
		PostgresTimeout:  10 * time.Second,
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

// newServer wires the API server the way the binary does, with a
// cheap bcrypt cost and no role cache so promotions apply at once.
func newServer(store api.Storage) (*api.Server, *auth.Manager) {
	logger := testLogger()
	tokens := auth.NewManager(store)
	server := api.NewServer(store, api.Options{
		Tokens:     tokens,
		Checker:    rbac.NewChecker(store, 0, 0, logger),
		BcryptCost: 4,
		Logger:     logger,
	})
	return server, tokens
}

func do(t *testing.T, server *api.Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

// registerAndLogin drives the real registration and login endpoints
// and returns the account's bearer token.
func registerAndLogin(t *testing.T, server *api.Server, username string) string {
	t.Helper()

	w := do(t, server, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "reading-list-2026",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, server, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username,
		"password": "reading-list-2026",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	token, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)
	return token
}
