package search

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressleaf/biblio/pkg/api"
)

func searchRequest(t *testing.T, catalog *fakeCatalog, target string) *httptest.ResponseRecorder {
	t.Helper()

	handlers := NewHandlers(NewService(catalog, testLogger()), nil, testLogger())
	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSearchHandler_OK(t *testing.T) {
	catalog := &fakeCatalog{
		books:   []*api.Book{{ID: 1, Title: "The Dispossessed", PublicationYear: 1974}},
		authors: []*api.Author{{ID: 2, Name: "Ursula K. Le Guin"}},
		titles:  []string{"The Dispossessed"},
	}

	rec := searchRequest(t, catalog, "/search?q=dispossessed")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "dispossessed", resp.Query)
	require.Len(t, resp.Books, 1)
	assert.Equal(t, "The Dispossessed", resp.Books[0].Title)
	require.Len(t, resp.Authors, 1)
	assert.Equal(t, 2, resp.TotalCount)
}

func TestSearchHandler_EmptyGroupsSerializeAsArrays(t *testing.T) {
	rec := searchRequest(t, &fakeCatalog{}, "/search?q=nothing")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	assert.JSONEq(t, "[]", string(raw["books"]))
	assert.JSONEq(t, "[]", string(raw["authors"]))
	assert.JSONEq(t, "[]", string(raw["suggestions"]))
}

func TestSearchHandler_MissingQuery(t *testing.T) {
	rec := searchRequest(t, &fakeCatalog{}, "/search")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "query parameter q is required", body["error"])
}

func TestSearchHandler_InvalidYearFilter(t *testing.T) {
	rec := searchRequest(t, &fakeCatalog{}, "/search?q=year:soon")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body["error"], "invalid year filter")
}

func TestSearchHandler_InvalidLimit(t *testing.T) {
	rec := searchRequest(t, &fakeCatalog{}, "/search?q=dune&limit=lots")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchHandler_CatalogError(t *testing.T) {
	catalog := &fakeCatalog{bookErr: errors.New("db down")}

	rec := searchRequest(t, catalog, "/search?q=dune")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "search is unavailable", body["error"])
}
