package rest

import "github.com/vexdb/vexdb/pkg/db"

// CreateCollectionRequest is the body of POST /v1/collections.
type CreateCollectionRequest struct {
	Name           string  `json:"name"`
	Dimension      int     `json:"dimension"`
	Metric         string  `json:"metric,omitempty"`
	M              int     `json:"m,omitempty"`
	EfConstruction int     `json:"ef_construction,omitempty"`
	Precision      string  `json:"precision,omitempty"`
	MaxVectors     int64   `json:"max_vectors,omitempty"`
}

// CreateCollectionResponse echoes the created collection.
type CreateCollectionResponse struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// ListCollectionsResponse is the body of GET /v1/collections.
type ListCollectionsResponse struct {
	Collections []string `json:"collections"`
}

// InsertRequest is the body of POST /v1/vectors.
type InsertRequest struct {
	Collection string            `json:"collection"`
	Vector     []float32         `json:"vector"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// InsertResponse returns the id assigned to the vector.
type InsertResponse struct {
	ID uint32 `json:"id"`
}

// BatchInsertResponse returns the ids assigned by POST /v1/vectors/batch.
type BatchInsertResponse struct {
	IDs []uint32 `json:"ids"`
}

// SearchRequest is the body of POST /v1/vectors/search. Filter
// restricts hits to vectors whose metadata carries every listed pair.
type SearchRequest struct {
	Collection string            `json:"collection"`
	Vector     []float32         `json:"vector"`
	K          int               `json:"k"`
	Ef         int               `json:"ef,omitempty"`
	Filter     map[string]string `json:"filter,omitempty"`
}

// SearchResponse carries the hits, nearest first.
type SearchResponse struct {
	Results []db.SearchResult `json:"results"`
}

// DeleteRequest is the body of POST /v1/vectors/delete.
type DeleteRequest struct {
	Collection string `json:"collection"`
	ID         uint32 `json:"id"`
}

// StatusResponse acknowledges a mutation with no other payload.
type StatusResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status      string `json:"status"`
	Collections int    `json:"collections"`
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Collections []db.CollectionStats `json:"collections"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}
