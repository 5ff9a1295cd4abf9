package webhooks

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/middleware"
	"github.com/pressleaf/biblio/pkg/rbac"
)

// Handlers exposes subscription management on the admin API.
type Handlers struct {
	dispatcher *Dispatcher
	checker    *rbac.Checker
}

// NewHandlers builds the admin handlers for d.
func NewHandlers(d *Dispatcher, checker *rbac.Checker) *Handlers {
	return &Handlers{dispatcher: d, checker: checker}
}

// RegisterRoutes mounts the management endpoints on the /api/v1
// subrouter. Every route requires the admin role.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	guard := middleware.RequireRole(h.checker, rbac.RoleAdmin)

	router.Handle("/admin/webhooks", guard(http.HandlerFunc(h.create))).Methods("POST")
	router.Handle("/admin/webhooks", guard(http.HandlerFunc(h.list))).Methods("GET")
	router.Handle("/admin/webhooks/events", guard(http.HandlerFunc(h.events))).Methods("GET")
	router.Handle("/admin/webhooks/{id}", guard(http.HandlerFunc(h.get))).Methods("GET")
	router.Handle("/admin/webhooks/{id}", guard(http.HandlerFunc(h.update))).Methods("PUT")
	router.Handle("/admin/webhooks/{id}", guard(http.HandlerFunc(h.remove))).Methods("DELETE")
	router.Handle("/admin/webhooks/{id}/deliveries", guard(http.HandlerFunc(h.deliveries))).Methods("GET")
	router.Handle("/admin/webhooks/{id}/ping", guard(http.HandlerFunc(h.ping))).Methods("POST")
}

// subscriptionRequest is the write payload for create and update.
// Pointer fields let update distinguish absent keys from zero values.
type subscriptionRequest struct {
	URL         *string     `json:"url"`
	Events      []EventType `json:"events"`
	Secret      *string     `json:"secret"`
	Format      *string     `json:"format"`
	Description *string     `json:"description"`
	Active      *bool       `json:"active"`
}

// create handles POST /api/v1/admin/webhooks. A new subscription is
// live unless the request says otherwise.
func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	var in subscriptionRequest
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	sub := &Subscription{
		Events: in.Events,
		Active: true,
	}
	if in.URL != nil {
		sub.URL = *in.URL
	}
	if in.Secret != nil {
		sub.Secret = *in.Secret
	}
	if in.Format != nil {
		sub.Format = *in.Format
	}
	if in.Description != nil {
		sub.Description = *in.Description
	}
	if in.Active != nil {
		sub.Active = *in.Active
	}

	if err := h.dispatcher.Register(sub); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	httputil.WriteMessage(w, http.StatusCreated, "Webhook created successfully", "webhook", sub)
}

// list handles GET /api/v1/admin/webhooks.
func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"webhooks": h.dispatcher.List(),
	})
}

// events handles GET /api/v1/admin/webhooks/events.
func (h *Handlers) events(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": EventTypes(),
	})
}

// get handles GET /api/v1/admin/webhooks/{id}.
func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.dispatcher.Get(mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteNotFoundError(w, "webhook not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"webhook": sub})
}

// update handles PUT /api/v1/admin/webhooks/{id}.
func (h *Handlers) update(w http.ResponseWriter, r *http.Request) {
	var in subscriptionRequest
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	sub, err := h.dispatcher.Update(mux.Vars(r)["id"], SubscriptionUpdate{
		URL:         in.URL,
		Events:      in.Events,
		Secret:      in.Secret,
		Format:      in.Format,
		Description: in.Description,
		Active:      in.Active,
	})
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFoundError(w, "webhook not found")
	case err != nil:
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteMessage(w, http.StatusOK, "Webhook updated successfully", "webhook", sub)
	}
}

// remove handles DELETE /api/v1/admin/webhooks/{id}.
func (h *Handlers) remove(w http.ResponseWriter, r *http.Request) {
	sub, err := h.dispatcher.Unregister(mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteNotFoundError(w, "webhook not found")
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Webhook deleted successfully", "deleted_webhook", sub)
}

// deliveries handles GET /api/v1/admin/webhooks/{id}/deliveries. The
// limit query parameter caps the list, 50 by default.
func (h *Handlers) deliveries(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.dispatcher.Get(id); err != nil {
		httputil.WriteNotFoundError(w, "webhook not found")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"deliveries": h.dispatcher.Deliveries(id, limit),
		"stats":      h.dispatcher.DeliveryStats(id),
	})
}

// ping handles POST /api/v1/admin/webhooks/{id}/ping. The test event
// goes out regardless of the subscription's event filter or active
// flag.
func (h *Handlers) ping(w http.ResponseWriter, r *http.Request) {
	event, delivery, err := h.dispatcher.Ping(mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteNotFoundError(w, "webhook not found")
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":  "Test delivery queued",
		"event":    event,
		"delivery": delivery,
	})
}
