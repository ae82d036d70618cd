package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/user/shuttle/internal/engine"
	"github.com/user/shuttle/internal/membership"
	"github.com/user/shuttle/internal/store"
)

// writeDomainError maps engine, store, and membership errors to responses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, membership.ErrCollectionNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "COLLECTION_NOT_FOUND")
	case errors.Is(err, store.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "OPERATION_NOT_FOUND")
	case errors.Is(err, engine.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error(), "UNAVAILABLE")
	case membership.IsOverloadedError(err):
		if ms, ok := membership.OverloadRetryAfterMs(err); ok {
			w.Header().Set("Retry-After", strconv.Itoa((ms+999)/1000))
		}
		writeError(w, http.StatusTooManyRequests, err.Error(), "OVERLOADED")
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
