package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/reconcile"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps a sync error onto an HTTP status. Unknown errors are
// logged and reported as 500.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, errorBody("a sync run is already in progress"))
	case errors.Is(err, apperr.ErrConnectivity):
		writeJSON(w, http.StatusBadGateway, errorBody("could not connect to Anki"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrMissingIdentity):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("document has no anki-id"))
	case errors.Is(err, apperr.ErrRemoteRejected):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	case errors.Is(err, reconcile.ErrNoTargetFolder):
		writeJSON(w, http.StatusBadRequest, errorBody("target folder is not set"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
