package api

import (
	"errors"

	"net/http"

	"github.com/WispAyr/baywatch/internal/apperr"
)

// WriteError maps an apperr sentinel to the matching HTTP status and
// writes the standard error envelope. Unrecognized errors map to 500.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidZone), errors.Is(err, apperr.ErrInvalidImage),
		errors.Is(err, apperr.ErrUnknownMode), errors.Is(err, apperr.ErrDimensionMismatch):
		BadRequest(w, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, apperr.ErrBackendUnavailable):
		Error(w, http.StatusServiceUnavailable, "BACKEND_UNAVAILABLE", err.Error())
	case errors.Is(err, apperr.ErrPersistence):
		InternalError(w, err.Error())
	default:
		InternalError(w, err.Error())
	}
}
