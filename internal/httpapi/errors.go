package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"jobboard-engine/internal/store"
)

type APIError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func newAPIError(r *http.Request, code, message string) APIError {
	var e APIError
	e.Error.Code = code
	e.Error.Message = message
	e.Error.RequestID = RequestIDFrom(r.Context())
	return e
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, status, newAPIError(r, code, message))
}

// writeStoreError maps store sentinels onto status codes. Anything unknown is
// logged and reported as a 500 without internals.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, r, http.StatusNotFound, "not_found", "Board or job not found")
	case errors.Is(err, store.ErrBoardExists):
		WriteError(w, r, http.StatusConflict, "board_exists", err.Error())
	case errors.Is(err, store.ErrColumnExists):
		WriteError(w, r, http.StatusConflict, "column_exists", err.Error())
	case errors.Is(err, store.ErrPINRequired):
		WriteError(w, r, http.StatusUnauthorized, "pin_required", err.Error())
	case errors.Is(err, store.ErrPINMismatch):
		WriteError(w, r, http.StatusUnauthorized, "pin_mismatch", err.Error())
	case errors.Is(err, store.ErrInvalidSlug),
		errors.Is(err, store.ErrInvalidPIN),
		errors.Is(err, store.ErrInvalidJob),
		errors.Is(err, store.ErrTooManyJobs),
		errors.Is(err, store.ErrInvalidStatus),
		errors.Is(err, store.ErrInvalidColumn):
		WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		log.Printf("level=error msg=\"store\" request_id=%s path=%s err=%v", RequestIDFrom(r.Context()), r.URL.Path, err)
		WriteError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
