package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressleaf/biblio/pkg/auth"
	"github.com/pressleaf/biblio/pkg/contextkeys"
	"github.com/pressleaf/biblio/pkg/rbac"
)

// roleMap satisfies rbac.RoleSource for handler tests.
type roleMap map[int64]string

func (m roleMap) UserRole(_ context.Context, userID int64) (string, error) {
	return m[userID], nil
}

const (
	adminID  = int64(1)
	memberID = int64(2)
)

func newHandlersEnv(t *testing.T) (*Dispatcher, *mux.Router) {
	t.Helper()
	d := NewDispatcher(0, discardLogger())
	checker := rbac.NewChecker(roleMap{adminID: rbac.RoleAdmin, memberID: rbac.RoleMember}, 0, 0, discardLogger())

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	NewHandlers(d, checker).RegisterRoutes(api)
	return d, router
}

func doJSON(t *testing.T, router *mux.Router, method, path string, userID int64, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != 0 {
		req = req.WithContext(contextkeys.WithAuth(req.Context(), &auth.Identity{UserID: userID}))
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	out := map[string]interface{}{}
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	}
	return rr, out
}

func TestWebhookHandlers_RequireAdmin(t *testing.T) {
	_, router := newHandlersEnv(t)

	rr, body := doJSON(t, router, http.MethodGet, "/api/v1/admin/webhooks", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "authentication required", body["error"])

	rr, body = doJSON(t, router, http.MethodGet, "/api/v1/admin/webhooks", memberID, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "you do not have permission to perform this action", body["error"])
}

func TestWebhookHandlers_CRUDRoundTrip(t *testing.T) {
	_, router := newHandlersEnv(t)

	rr, body := doJSON(t, router, http.MethodPost, "/api/v1/admin/webhooks", adminID, map[string]interface{}{
		"url":         "https://example.com/hook",
		"events":      []string{"book.created", "book.deleted"},
		"secret":      "tea-and-books",
		"description": "catalog mirror",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "Webhook created successfully", body["message"])

	created, ok := body["webhook"].(map[string]interface{})
	require.True(t, ok)
	id, _ := created["id"].(string)
	require.True(t, strings.HasPrefix(id, "wh_"))
	assert.Equal(t, true, created["active"])

	rr, body = doJSON(t, router, http.MethodGet, "/api/v1/admin/webhooks", adminID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	hooks, ok := body["webhooks"].([]interface{})
	require.True(t, ok)
	require.Len(t, hooks, 1)

	rr, body = doJSON(t, router, http.MethodGet, "/api/v1/admin/webhooks/"+id, adminID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	fetched := body["webhook"].(map[string]interface{})
	assert.Equal(t, "https://example.com/hook", fetched["url"])

	rr, body = doJSON(t, router, http.MethodPut, "/api/v1/admin/webhooks/"+id, adminID, map[string]interface{}{
		"description": "paused mirror",
		"active":      false,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Webhook updated successfully", body["message"])
	updated := body["webhook"].(map[string]interface{})
	assert.Equal(t, "paused mirror", updated["description"])
	assert.Equal(t, false, updated["active"])
	assert.Equal(t, "https://example.com/hook", updated["url"])

	rr, body = doJSON(t, router, http.MethodGet, "/api/v1/admin/webhooks/events", adminID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	events, ok := body["events"].([]interface{})
	require.True(t, ok)
	assert.Contains(t, events, "book.created")
	assert.NotContains(t, events, "ping")

	rr, body = doJSON(t, router, http.MethodDelete, "/api/v1/admin/webhooks/"+id, adminID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Webhook deleted successfully", body["message"])
	deleted := body["deleted_webhook"].(map[string]interface{})
	assert.Equal(t, id, deleted["id"])

	rr, body = doJSON(t, router, http.MethodGet, "/api/v1/admin/webhooks/"+id, adminID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "webhook not found", body["error"])
}

func TestWebhookHandlers_CreateValidation(t *testing.T) {
	_, router := newHandlersEnv(t)

	rr, body := doJSON(t, router, http.MethodPost, "/api/v1/admin/webhooks", adminID, map[string]interface{}{
		"url":    "not a url",
		"events": []string{"book.created"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, body["error"], "http")

	rr, body = doJSON(t, router, http.MethodPost, "/api/v1/admin/webhooks", adminID, map[string]interface{}{
		"url": "https://example.com/hook",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, body["error"], "at least one")
}

func TestWebhookHandlers_UpdateErrors(t *testing.T) {
	d, router := newHandlersEnv(t)

	rr, body := doJSON(t, router, http.MethodPut, "/api/v1/admin/webhooks/wh_missing", adminID, map[string]interface{}{
		"description": "ghost",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "webhook not found", body["error"])

	sub := register(t, d, "https://example.com/hook", EventBookCreated)
	rr, body = doJSON(t, router, http.MethodPut, "/api/v1/admin/webhooks/"+sub.ID, adminID, map[string]interface{}{
		"url": "ftp://example.com/hook",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, body["error"], "http")
}

func TestWebhookHandlers_PingAndDeliveries(t *testing.T) {
	d, router := newHandlersEnv(t)
	srv, _ := captureServer(t, http.StatusOK)
	sub := register(t, d, srv.URL, EventBookCreated)

	rr, body := doJSON(t, router, http.MethodPost, "/api/v1/admin/webhooks/"+sub.ID+"/ping", adminID, nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "Test delivery queued", body["message"])
	event := body["event"].(map[string]interface{})
	assert.Equal(t, "ping", event["type"])

	require.Eventually(t, func() bool {
		_, out := doJSON(t, router, http.MethodGet, "/api/v1/admin/webhooks/"+sub.ID+"/deliveries", adminID, nil)
		dels, _ := out["deliveries"].([]interface{})
		if len(dels) != 1 {
			return false
		}
		first, _ := dels[0].(map[string]interface{})
		return first["status"] == "success"
	}, 2*time.Second, 25*time.Millisecond)

	_, body = doJSON(t, router, http.MethodGet, "/api/v1/admin/webhooks/"+sub.ID+"/deliveries", adminID, nil)
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["total"])
	assert.Equal(t, float64(1), stats["succeeded"])

	rr, _ = doJSON(t, router, http.MethodGet, "/api/v1/admin/webhooks/"+sub.ID+"/deliveries?limit=zero", adminID, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = doJSON(t, router, http.MethodGet, "/api/v1/admin/webhooks/wh_missing/deliveries", adminID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "webhook not found", body["error"])

	rr, _ = doJSON(t, router, http.MethodPost, "/api/v1/admin/webhooks/wh_missing/ping", adminID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
