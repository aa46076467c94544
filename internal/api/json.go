package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/avlog/internal/apperr"
)

// Error codes carried in errorBody.Code.
const (
	codeBadRequest      = "bad_request"
	codeUnauthorized    = "unauthorized"
	codeNotFound        = "not_found"
	codeInvalidQuery    = "invalid_query"
	codeCatalogDisabled = "catalog_disabled"
	codeInternal        = "internal"
)

// errorBody is the envelope of every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// writeRaw sends an already encoded document as is. Encoding a
// json.RawMessage would compact it.
func writeRaw(w http.ResponseWriter, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		slog.Debug("write response failed", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeServiceError maps recordservice errors to a status and code.
// Anything unrecognised is logged under op and hidden behind a 500.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, apperr.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, codeInvalidQuery, err.Error())
	case errors.Is(err, apperr.ErrNoCatalog):
		writeError(w, http.StatusNotImplemented, codeCatalogDisabled, err.Error())
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
