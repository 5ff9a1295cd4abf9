// Package swagger serves the API reference: the OpenAPI document in
// YAML and JSON, and a Swagger UI page loaded from the jsdelivr CDN.
package swagger

import (
	_ "embed"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"github.com/pressleaf/biblio/pkg/httputil"
)

//go:embed openapi.yaml
var openapiYAML []byte

// Handlers serves the OpenAPI document and the browsable UI.
type Handlers struct {
	jsonOnce sync.Once
	jsonSpec []byte
	jsonErr  error
}

// NewHandlers creates the documentation handlers.
func NewHandlers() *Handlers {
	return &Handlers{}
}

// RegisterRoutes mounts the documentation routes. Everything here is
// public; the document describes the API, it does not expose data.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/openapi.yaml", h.serveYAML).Methods(http.MethodGet)
	router.HandleFunc("/openapi.json", h.serveJSON).Methods(http.MethodGet)
	router.HandleFunc("/swagger-ui", h.serveUI).Methods(http.MethodGet)
	router.HandleFunc("/api-docs", h.serveUI).Methods(http.MethodGet)
}

// serveYAML handles GET /openapi.yaml with the embedded document. The
// CORS header lets external tooling load the document directly.
func (h *Handlers) serveYAML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-yaml")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	w.Write(openapiYAML)
}

// serveJSON handles GET /openapi.json. The document is converted from
// the YAML source once and cached; the source is embedded at build
// time, so conversion cannot fail on a healthy binary.
func (h *Handlers) serveJSON(w http.ResponseWriter, r *http.Request) {
	h.jsonOnce.Do(func() {
		var doc interface{}
		if err := yaml.Unmarshal(openapiYAML, &doc); err != nil {
			h.jsonErr = err
			return
		}
		h.jsonSpec, h.jsonErr = json.Marshal(doc)
	})
	if h.jsonErr != nil {
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "openapi document is invalid")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	w.Write(h.jsonSpec)
}

// serveUI handles GET /swagger-ui and its /api-docs alias.
func (h *Handlers) serveUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(swaggerUIPage))
}

// swaggerUIPage is served as-is. The request interceptor reads an API
// token from localStorage under biblio_api_token so "try it out" calls
// can authenticate.
const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Biblio API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5.10.5/swagger-ui.css" />
  <link rel="icon" type="image/png" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5.10.5/favicon-32x32.png" sizes="32x32" />
  <style>
    html {
      box-sizing: border-box;
      overflow-y: scroll;
    }
    *, *:before, *:after {
      box-sizing: inherit;
    }
    body {
      margin: 0;
      padding: 0;
    }
  </style>
</head>
<body>
<div id="swagger-ui"></div>

<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5.10.5/swagger-ui-bundle.js" charset="UTF-8"></script>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5.10.5/swagger-ui-standalone-preset.js" charset="UTF-8"></script>
<script>
window.onload = function() {
  window.ui = SwaggerUIBundle({
    url: "/openapi.yaml",
    dom_id: '#swagger-ui',
    deepLinking: true,
    presets: [
      SwaggerUIBundle.presets.apis,
      SwaggerUIStandalonePreset
    ],
    plugins: [
      SwaggerUIBundle.plugins.DownloadUrl
    ],
    layout: "StandaloneLayout",
    requestInterceptor: function(request) {
      const token = localStorage.getItem('biblio_api_token');
      if (token) {
        request.headers['Authorization'] = 'Bearer ' + token;
      }
      return request;
    }
  });
};
</script>
</body>
</html>`
