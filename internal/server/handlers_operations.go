package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/user/shuttle/internal/engine"
)

// @Summary Start a bulk add
// @Description Admits a job that adds companies from the source collection to the target collection.
// @Tags Operations
// @Accept json
// @Produce json
// @Param source_id path string true "Source collection ID"
// @Param target_id path string true "Target collection ID"
// @Param body body BulkAddRequest true "Scope"
// @Success 202 {object} TaskResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /collections/{source_id}/to/{target_id}/companies/batch [post]
func (s *Server) handleBulkAdd(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "source_id")
	targetID := chi.URLParam(r, "target_id")
	if !validCollectionID(sourceID) || !validCollectionID(targetID) {
		writeError(w, http.StatusBadRequest, "collection ids must be UUIDs", "INVALID_ID")
		return
	}
	var req BulkAddRequest
	if err := decodeBody(r, bulkAddSchema, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	job, err := s.engine.StartBulkAdd(r.Context(), engine.BulkAddRequest{
		SourceCollectionID: sourceID,
		TargetCollectionID: targetID,
		Mode:               req.Mode,
		CompanyIDs:         req.CompanyIDs,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, TaskResponse{TaskID: job.ID, Total: job.Total, Lane: job.Lane})
}

// @Summary List operations
// @Tags Operations
// @Produce json
// @Param limit query int false "Max results (default 50)"
// @Success 200 {object} OperationsResponse
// @Router /operations [get]
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "INVALID_QUERY")
			return
		}
		limit = min(n, 1000)
	}
	ops, err := s.engine.List(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OperationsResponse{Operations: ops})
}

// @Summary Get operation status
// @Tags Operations
// @Produce json
// @Param task_id path string true "Operation ID"
// @Success 200 {object} engine.Status
// @Failure 404 {object} ErrorResponse
// @Router /operations/{task_id}/status [get]
func (s *Server) handleOperationStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Status(r.Context(), chi.URLParam(r, "task_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// @Summary Cancel an operation
// @Description Queued operations are cancelled immediately; running ones stop at their next checkpoint.
// @Tags Operations
// @Produce json
// @Param task_id path string true "Operation ID"
// @Success 200 {object} StatusResponse
// @Failure 404 {object} ErrorResponse
// @Router /operations/{task_id}/cancel [post]
func (s *Server) handleCancelOperation(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Cancel(r.Context(), chi.URLParam(r, "task_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: status})
}

// @Summary Undo an operation
// @Description Admits a job that removes exactly the ids the finished operation inserted.
// @Tags Operations
// @Accept json
// @Produce json
// @Param task_id path string true "Operation ID"
// @Param body body UndoRequest false "Target collection (defaults to the operation's target)"
// @Success 202 {object} UndoResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /operations/{task_id}/undo [post]
func (s *Server) handleUndoOperation(w http.ResponseWriter, r *http.Request) {
	var req UndoRequest
	if err := decodeBody(r, undoSchema, &req); err != nil {
		writeBodyError(w, err)
		return
	}
	job, err := s.engine.Undo(r.Context(), chi.URLParam(r, "task_id"), req.TargetCollectionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, UndoResponse{UndoTaskID: job.ID, Total: job.Total})
}
