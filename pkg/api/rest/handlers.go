package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vexdb/vexdb/pkg/db"
	"github.com/vexdb/vexdb/pkg/distance"
	"github.com/vexdb/vexdb/pkg/observability"
	"github.com/vexdb/vexdb/pkg/search"
	"github.com/vexdb/vexdb/pkg/snapshot"
	"github.com/vexdb/vexdb/pkg/vectorstore"
)

// Handler holds the HTTP handlers over the engine.
type Handler struct {
	store  *db.DB
	logger *observability.Logger
}

// NewHandler creates the handler set.
func NewHandler(store *db.DB, logger *observability.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// HealthCheck handles GET /v1/health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, HealthResponse{Status: "ok", Collections: len(h.store.List())}, http.StatusOK)
}

// GetStats handles GET /v1/stats and GET /v1/stats/{collection}.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/v1/stats"), "/")
	if name == "" {
		writeJSON(w, StatsResponse{Collections: h.store.Stats()}, http.StatusOK)
		return
	}

	col, err := h.store.Collection(name)
	if err != nil {
		writeErrorFor(w, err)
		return
	}
	writeJSON(w, col.Stats(), http.StatusOK)
}

// CreateCollection handles POST /v1/collections.
func (h *Handler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req CreateCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	metric, err := distance.ParseMetric(req.Metric)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	precision, err := vectorstore.ParsePrecision(req.Precision)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	col, err := h.store.CreateCollection(req.Name, db.CollectionParams{
		Dimension:      req.Dimension,
		Metric:         metric,
		M:              req.M,
		EfConstruction: req.EfConstruction,
		Precision:      precision,
		MaxVectors:     req.MaxVectors,
	})
	if err != nil {
		writeErrorFor(w, err)
		return
	}
	writeJSON(w, CreateCollectionResponse{Name: col.Name(), ID: col.ID()}, http.StatusCreated)
}

// ListCollections handles GET /v1/collections.
func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ListCollectionsResponse{Collections: h.store.List()}, http.StatusOK)
}

// DropCollection handles DELETE /v1/collections/{name}.
func (h *Handler) DropCollection(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/v1/collections/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, "expected /v1/collections/{name}", http.StatusBadRequest)
		return
	}
	if err := h.store.DropCollection(name); err != nil {
		writeErrorFor(w, err)
		return
	}
	writeJSON(w, StatusResponse{Status: "dropped"}, http.StatusOK)
}

// Insert handles POST /v1/vectors.
func (h *Handler) Insert(w http.ResponseWriter, r *http.Request) {
	var req InsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	col, err := h.store.Collection(req.Collection)
	if err != nil {
		writeErrorFor(w, err)
		return
	}
	id, err := col.Insert(req.Vector, req.Metadata)
	if err != nil {
		writeErrorFor(w, err)
		return
	}
	writeJSON(w, InsertResponse{ID: id}, http.StatusCreated)
}

// BatchInsert handles POST /v1/vectors/batch. The batch is not atomic:
// ids assigned before the first failure stay inserted.
func (h *Handler) BatchInsert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var reqs []InsertRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	ids := make([]uint32, 0, len(reqs))
	for i, req := range reqs {
		col, err := h.store.Collection(req.Collection)
		if err != nil {
			writeError(w, fmt.Sprintf("item %d: %v", i, err), statusFor(err))
			return
		}
		id, err := col.Insert(req.Vector, req.Metadata)
		if err != nil {
			writeError(w, fmt.Sprintf("item %d: %v", i, err), statusFor(err))
			return
		}
		ids = append(ids, id)
	}
	writeJSON(w, BatchInsertResponse{IDs: ids}, http.StatusCreated)
}

// Search handles POST /v1/vectors/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	col, err := h.store.Collection(req.Collection)
	if err != nil {
		writeErrorFor(w, err)
		return
	}
	var filter search.Filter
	if len(req.Filter) > 0 {
		filter = search.MatchAll(req.Filter)
	}
	results, err := col.SearchFiltered(req.Vector, req.K, req.Ef, filter)
	if err != nil {
		writeErrorFor(w, err)
		return
	}
	writeJSON(w, SearchResponse{Results: results}, http.StatusOK)
}

// Delete handles POST /v1/vectors/delete.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	col, err := h.store.Collection(req.Collection)
	if err != nil {
		writeErrorFor(w, err)
		return
	}
	if err := col.Delete(req.ID); err != nil {
		writeErrorFor(w, err)
		return
	}
	writeJSON(w, StatusResponse{Status: "deleted"}, http.StatusOK)
}

// Snapshot handles /v1/snapshot?collection={name}: GET streams the
// snapshot, POST restores the collection from the request body.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("collection")
	if name == "" {
		writeError(w, "missing collection query parameter", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		col, err := h.store.Collection(name)
		if err != nil {
			writeErrorFor(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		if err := col.Snapshot(w); err != nil {
			// Headers may already be sent; log rather than rewrite.
			h.logger.Error("snapshot failed", map[string]interface{}{
				"collection": name,
				"error":      err.Error(),
			})
		}
	case http.MethodPost:
		if _, err := h.store.Restore(name, r.Body); err != nil {
			writeErrorFor(w, err)
			return
		}
		writeJSON(w, StatusResponse{Status: "restored"}, http.StatusOK)
	default:
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, db.ErrCollectionNotFound), errors.Is(err, vectorstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrCollectionExists):
		return http.StatusConflict
	case errors.Is(err, db.ErrQuotaExceeded):
		return http.StatusForbidden
	case errors.Is(err, distance.ErrDimensionMismatch), errors.Is(err, snapshot.ErrCorruptSnapshot):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeErrorFor(w http.ResponseWriter, err error) {
	writeError(w, err.Error(), statusFor(err))
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: message, Status: statusCode}, statusCode)
}
