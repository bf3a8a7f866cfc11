package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rtm0/era5query/internal/grid"
	"github.com/rtm0/era5query/internal/observation"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, out_of_range, ...
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// writeError builds a JSON error response with the request ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: RequestID(r.Context()),
	})
}

// writeQueryError maps query errors to HTTP statuses.
func writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		lenErr     *grid.LengthMismatchError
		queryErr   *grid.InvalidQueryError
		windowErr  *grid.InvalidWindowError
		rangeErr   *grid.OutOfRangeError
		unknownErr *observation.ErrUnknownVariable
	)
	switch {
	case errors.As(err, &lenErr), errors.As(err, &queryErr), errors.As(err, &windowErr):
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
	case errors.As(err, &rangeErr):
		writeError(w, r, http.StatusUnprocessableEntity, "out_of_range", err.Error())
	case errors.As(err, &unknownErr):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, observation.ErrIncompatibleGrids):
		writeError(w, r, http.StatusUnprocessableEntity, "incompatible_grids", err.Error())
	case r.Context().Err() != nil:
		// client went away; nothing useful to send
		LoggerFromCtx(r.Context()).Info("request cancelled", "error", err)
	default:
		LoggerFromCtx(r.Context()).Error("query failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
