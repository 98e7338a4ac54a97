package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Handler holds API route handlers.
type Handler struct {
	svc Syncer
}

// NewHandler creates a new Handler.
func NewHandler(svc Syncer) *Handler {
	return &Handler{svc: svc}
}

// documentPath extracts the document path from the URL (everything after
// /api/documents/). Supports encoded slashes from OpenAPI clients
// (e.g. cards%2Fmitosis.md).
func documentPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Scan handles POST /api/scan.
//
//	@Summary		Sync every document of a folder
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ScanRequest	false	"Folder to scan, defaults to the configured target folder"
//	@Success		200		{object}	models.Report
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/scan [post]
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	rep, err := h.svc.Scan(r.Context(), req.Folder)
	if err != nil {
		writeError(w, "scan", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// SyncDocument handles POST /api/documents/*.
//
//	@Summary		Add or update the card of one document
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	models.Report
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [post]
func (h *Handler) SyncDocument(w http.ResponseWriter, r *http.Request) {
	path := documentPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	rep, err := h.svc.SyncDocument(r.Context(), path)
	if err != nil {
		writeError(w, "sync document", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// DeleteDocument handles DELETE /api/documents/*.
//
//	@Summary		Delete the card of a document and remove its anki-id
//	@Tags			documents
//	@Param			path	path	string	true	"Document path"
//	@Success		204		"Card deleted"
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [delete]
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	path := documentPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteDocument(r.Context(), path); err != nil {
		writeError(w, "delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List the last known sync state of every document
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.Documents(r.Context())
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs, Total: len(docs)})
}

// Ping handles GET /api/ping.
//
//	@Summary		Check that Anki is reachable
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	PingResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ping [get]
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		writeError(w, "ping", err)
		return
	}
	writeJSON(w, http.StatusOK, PingResponse{OK: true})
}

// Status handles GET /api/status.
//
//	@Summary		Report whether a run is active and list recent runs
//	@Tags			sync
//	@Produce		json
//	@Param			limit	query		int	false	"Number of runs"
//	@Success		200		{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 10
	}
	runs, err := h.svc.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Running: h.svc.Running(), Runs: runs})
}
