package server

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/user/shuttle/internal/dedup"
	"github.com/user/shuttle/internal/engine"
	"github.com/user/shuttle/internal/membership"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
	maxDirectAdd     = 1000
)

// @Summary List collections
// @Tags Collections
// @Produce json
// @Success 200 {object} CollectionsResponse
// @Router /collections [get]
func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	colls, err := s.members.ListCollections(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]CollectionSummary, 0, len(colls))
	for i := range colls {
		sum, err := s.summarize(r, &colls[i])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, CollectionsResponse{Collections: out})
}

// @Summary Create a collection
// @Tags Collections
// @Accept json
// @Produce json
// @Param body body CreateCollectionRequest true "Collection"
// @Success 201 {object} CollectionSummary
// @Failure 400 {object} ErrorResponse
// @Router /collections [post]
func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req CreateCollectionRequest
	if err := decodeBody(r, createCollectionSchema, &req); err != nil {
		writeBodyError(w, err)
		return
	}
	c, err := s.members.CreateCollection(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CollectionSummary{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt.Format(time.RFC3339Nano)})
}

// @Summary Get a collection
// @Description Returns the collection with one page of member ids in ascending order.
// @Tags Collections
// @Produce json
// @Param collection_id path string true "Collection ID"
// @Param offset query int false "Members to skip"
// @Param limit query int false "Page size (default 100, max 1000)"
// @Success 200 {object} CollectionResponse
// @Failure 404 {object} ErrorResponse
// @Router /collections/{collection_id} [get]
func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := collectionParam(w, r)
	if !ok {
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer", "INVALID_QUERY")
		return
	}
	limit, err := queryInt(r, "limit", defaultPageLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer", "INVALID_QUERY")
		return
	}
	limit = min(limit, maxPageLimit)

	c, err := s.members.GetCollection(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sum, err := s.summarize(r, c)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	ids, err := s.page(r, id, offset, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CollectionResponse{CollectionSummary: sum, CompanyIDs: ids, Offset: offset, Limit: limit})
}

// @Summary Delete a collection
// @Tags Collections
// @Produce json
// @Param collection_id path string true "Collection ID"
// @Success 200 {object} StatusResponse
// @Failure 404 {object} ErrorResponse
// @Router /collections/{collection_id} [delete]
func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := collectionParam(w, r)
	if !ok {
		return
	}
	if err := s.members.DeleteCollection(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "deleted"})
}

// @Summary Add companies to a collection
// @Description Direct synchronous add for small explicit sets. Use the batch endpoint for large moves.
// @Tags Collections
// @Accept json
// @Produce json
// @Param collection_id path string true "Collection ID"
// @Param body body AddCompaniesRequest true "Company ids"
// @Success 200 {object} AddCompaniesResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /collections/{collection_id}/companies [post]
func (s *Server) handleAddCompanies(w http.ResponseWriter, r *http.Request) {
	id, ok := collectionParam(w, r)
	if !ok {
		return
	}
	var req AddCompaniesRequest
	if err := decodeBody(r, addCompaniesSchema, &req); err != nil {
		writeBodyError(w, err)
		return
	}
	ids := dedup.Unique(req.CompanyIDs)
	if len(ids) > maxDirectAdd {
		writeError(w, http.StatusBadRequest, "too many company_ids for a direct add; use a batch operation", "TOO_MANY_IDS")
		return
	}
	added, err := s.members.Add(r.Context(), id, ids)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AddCompaniesResponse{Added: len(added)})
}

// @Summary Remove companies from a collection
// @Description Synchronous removal of selected ids, or of every member except exclude_ids.
// @Tags Collections
// @Accept json
// @Produce json
// @Param collection_id path string true "Collection ID"
// @Param body body DeleteCompaniesRequest true "Selection"
// @Success 200 {object} DeleteCompaniesResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /collections/{collection_id}/companies/delete [post]
func (s *Server) handleDeleteCompanies(w http.ResponseWriter, r *http.Request) {
	id, ok := collectionParam(w, r)
	if !ok {
		return
	}
	var req DeleteCompaniesRequest
	if err := decodeBody(r, deleteCompaniesSchema, &req); err != nil {
		writeBodyError(w, err)
		return
	}
	n, err := s.engine.RemoveMembers(r.Context(), id, engine.RemoveRequest{
		Mode:       req.Mode,
		CompanyIDs: req.CompanyIDs,
		ExcludeIDs: req.ExcludeIDs,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteCompaniesResponse{Deleted: n})
}

func (s *Server) summarize(r *http.Request, c *membership.Collection) (CollectionSummary, error) {
	n, err := s.members.Count(r.Context(), c.ID)
	if err != nil {
		return CollectionSummary{}, err
	}
	return CollectionSummary{ID: c.ID, Name: c.Name, Total: n, CreatedAt: c.CreatedAt.Format(time.RFC3339Nano)}, nil
}

// page skips offset members by walking the ascending id cursor.
func (s *Server) page(r *http.Request, collectionID string, offset, limit int) ([]int64, error) {
	from := int64(math.MinInt64)
	for offset > 0 {
		step := min(offset, maxPageLimit)
		skipped, err := s.members.Members(r.Context(), collectionID, from, step)
		if err != nil {
			return nil, err
		}
		if len(skipped) < step {
			return []int64{}, nil
		}
		last := skipped[len(skipped)-1]
		if last == math.MaxInt64 {
			return []int64{}, nil
		}
		from = last + 1
		offset -= step
	}
	return s.members.Members(r.Context(), collectionID, from, limit)
}

func collectionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "collection_id")
	if !validCollectionID(id) {
		writeError(w, http.StatusBadRequest, "collection id must be a UUID", "INVALID_ID")
		return "", false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
