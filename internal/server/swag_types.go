package server

import "github.com/user/shuttle/internal/engine"

// ErrorResponse is the standard API error response shape.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Code    string           `json:"code"`
	Details []FieldViolation `json:"details,omitempty"`
}

// FieldViolation describes one request body field that failed validation.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// StatusResponse is a generic status response.
type StatusResponse struct {
	Status string `json:"status"`
}

// BulkAddRequest is the body for POST /collections/{source_id}/to/{target_id}/companies/batch.
type BulkAddRequest struct {
	Mode       string  `json:"mode"`
	CompanyIDs []int64 `json:"company_ids,omitempty"`
}

// TaskResponse is returned when an operation is admitted.
type TaskResponse struct {
	TaskID string `json:"task_id"`
	Total  int    `json:"total"`
	Lane   string `json:"lane"`
}

// OperationsResponse lists recent operations.
type OperationsResponse struct {
	Operations []engine.Status `json:"operations"`
}

// UndoRequest is the body for POST /operations/{task_id}/undo.
type UndoRequest struct {
	TargetCollectionID string `json:"target_collection_id"`
}

// UndoResponse is returned when an undo operation is admitted.
type UndoResponse struct {
	UndoTaskID string `json:"undo_task_id"`
	Total      int    `json:"total"`
}

// DeleteCompaniesRequest is the body for POST /collections/{collection_id}/companies/delete.
type DeleteCompaniesRequest struct {
	Mode       string  `json:"mode"`
	CompanyIDs []int64 `json:"company_ids,omitempty"`
	ExcludeIDs []int64 `json:"exclude_ids,omitempty"`
}

// DeleteCompaniesResponse reports how many members were removed.
type DeleteCompaniesResponse struct {
	Deleted int `json:"deleted"`
}

// CreateCollectionRequest is the body for POST /collections.
type CreateCollectionRequest struct {
	Name string `json:"collection_name"`
}

// CollectionSummary is one entry of GET /collections.
type CollectionSummary struct {
	ID        string `json:"id"`
	Name      string `json:"collection_name"`
	Total     int    `json:"total"`
	CreatedAt string `json:"created_at"`
}

// CollectionsResponse lists collections.
type CollectionsResponse struct {
	Collections []CollectionSummary `json:"collections"`
}

// CollectionResponse is a collection with one page of member ids.
type CollectionResponse struct {
	CollectionSummary
	CompanyIDs []int64 `json:"company_ids"`
	Offset     int     `json:"offset"`
	Limit      int     `json:"limit"`
}

// AddCompaniesRequest is the body for POST /collections/{collection_id}/companies.
type AddCompaniesRequest struct {
	CompanyIDs []int64 `json:"company_ids"`
}

// AddCompaniesResponse reports how many ids were newly added.
type AddCompaniesResponse struct {
	Added int `json:"added"`
}
