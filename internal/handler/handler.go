package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"prosopography/internal/domain"
	"prosopography/internal/filter"
	"prosopography/internal/service"
)

// CatalogHandler serves the read API of the catalog
type CatalogHandler struct {
	svc    *service.CatalogService
	events http.Handler
	log    zerolog.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(svc *service.CatalogService, logger zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{svc: svc, log: logger}
}

// SetEventStream mounts an event stream handler at /api/events
func (h *CatalogHandler) SetEventStream(events http.Handler) {
	h.events = events
}

// Error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// KindInfo describes one entity kind served by the API
type KindInfo struct {
	Kind  domain.Kind `json:"kind"`
	Label string      `json:"label"`
}

// Router builds the HTTP routes
func (h *CatalogHandler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestID, Logging(h.log))

	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	router.HandleFunc("/api/kinds", h.ListKinds).Methods(http.MethodGet)
	router.HandleFunc("/api/collections", h.ListCollections).Methods(http.MethodGet)
	router.HandleFunc("/api/groups", h.ListGroups).Methods(http.MethodGet)
	if h.events != nil {
		router.Handle("/api/events", h.events).Methods(http.MethodGet)
	}

	// Registered on the root router: a subrouter answers method mismatches with 404.
	router.HandleFunc("/api/{kind}", h.ListEntities).Methods(http.MethodGet)
	router.HandleFunc("/api/{kind}/lookup", h.Lookup).Methods(http.MethodGet)
	router.HandleFunc("/api/{kind}/filters", h.Filters).Methods(http.MethodGet)
	router.HandleFunc("/api/{kind}/{id:[0-9]+}", h.GetEntity).Methods(http.MethodGet)
	router.HandleFunc("/api/{kind}/{id:[0-9]+}/history", h.History).Methods(http.MethodGet)
	router.HandleFunc("/api/{kind}/{id:[0-9]+}/permissions", h.Permissions).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, "Not found", r.URL.Path, http.StatusNotFound)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, "Method not allowed", "the API is read-only", http.StatusMethodNotAllowed)
	})
	return router
}

// Health reports that the server is up
func (h *CatalogHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// ListKinds returns the registered entity kinds
func (h *CatalogHandler) ListKinds(w http.ResponseWriter, r *http.Request) {
	registry := h.svc.Registry()
	kinds := make([]KindInfo, 0)
	for _, k := range registry.Kinds() {
		spec, _ := registry.Spec(k)
		kinds = append(kinds, KindInfo{Kind: k, Label: spec.Label})
	}
	h.writeJSON(w, kinds, http.StatusOK)
}

// ListCollections returns all collections with their allowed groups
func (h *CatalogHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := h.svc.ListCollections(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list collections", err)
		return
	}
	if collections == nil {
		collections = make([]domain.Collection, 0)
	}
	h.writeJSON(w, collections, http.StatusOK)
}

// ListGroups returns all groups
func (h *CatalogHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.ListGroups(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list groups", err)
		return
	}
	if groups == nil {
		groups = make([]domain.Group, 0)
	}
	h.writeJSON(w, groups, http.StatusOK)
}

// ListEntities returns one page of entities matching the query filters
func (h *CatalogHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	page, err := h.svc.Search(r.Context(), kind, r.URL.Query())
	if err != nil {
		h.fail(w, r, "Failed to search", err)
		return
	}
	h.writeJSON(w, page, http.StatusOK)
}

// GetEntity returns a single entity
func (h *CatalogHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.kindAndID(w, r)
	if !ok {
		return
	}
	e, err := h.svc.Get(r.Context(), kind, id)
	if err != nil {
		h.fail(w, r, "Failed to get entity", err)
		return
	}
	h.writeJSON(w, e, http.StatusOK)
}

// Lookup resolves ?ref= as a primary key or URI
func (h *CatalogHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	e, err := h.svc.Lookup(r.Context(), kind, r.URL.Query().Get("ref"))
	if err != nil {
		h.fail(w, r, "Failed to look up entity", err)
		return
	}
	h.writeJSON(w, e, http.StatusOK)
}

// Filters describes the filter fields of a kind
func (h *CatalogHandler) Filters(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	fields, err := h.svc.Filters(kind)
	if err != nil {
		h.fail(w, r, "Failed to describe filters", err)
		return
	}
	h.writeJSON(w, fields, http.StatusOK)
}

// History returns the revisions of an entity, newest first
func (h *CatalogHandler) History(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.kindAndID(w, r)
	if !ok {
		return
	}
	revs, err := h.svc.History(r.Context(), kind, id)
	if err != nil {
		h.fail(w, r, "Failed to get history", err)
		return
	}
	h.writeJSON(w, revs, http.StatusOK)
}

// Permissions returns the object permissions held on an entity
func (h *CatalogHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.kindAndID(w, r)
	if !ok {
		return
	}
	grants, err := h.svc.Permissions(r.Context(), kind, id)
	if err != nil {
		h.fail(w, r, "Failed to get permissions", err)
		return
	}
	h.writeJSON(w, grants, http.StatusOK)
}

// kind resolves the {kind} path variable, accepting plurals of the built-in kinds
func (h *CatalogHandler) kind(w http.ResponseWriter, r *http.Request) (domain.Kind, bool) {
	raw := mux.Vars(r)["kind"]
	k, err := h.svc.Registry().Resolve(raw)
	if err == nil {
		return k, true
	}
	h.writeError(w, "Unknown entity kind", raw, http.StatusNotFound)
	return "", false
}

func (h *CatalogHandler) kindAndID(w http.ResponseWriter, r *http.Request) (domain.Kind, int64, bool) {
	kind, ok := h.kind(w, r)
	if !ok {
		return "", 0, false
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeError(w, "Invalid entity ID", err.Error(), http.StatusBadRequest)
		return "", 0, false
	}
	return kind, id, true
}

// fail writes err with the status matching its kind
func (h *CatalogHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("request_id", RequestIDFrom(r.Context())).Msg(msg)
	}
	h.writeError(w, msg, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownKind):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMalformedRef),
		errors.Is(err, domain.ErrInvalidEntity),
		errors.Is(err, filter.ErrUnknownField),
		errors.Is(err, filter.ErrUnsupportedLookup),
		errors.Is(err, filter.ErrInvalidValue):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *CatalogHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("failed to encode JSON")
	}
}

func (h *CatalogHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}
