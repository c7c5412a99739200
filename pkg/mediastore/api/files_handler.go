// Package api exposes the placement and deletion operations over HTTP
// for the surrounding application. Routing beyond these handlers,
// authentication and request validation belong to the host application.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/artreg/mediastore/pkg/mediastore"
)

// maxUploadMemory bounds the in-memory part of multipart parsing; the
// rest spills to temp files.
const maxUploadMemory = 32 << 20

// FilesHandler handles file placement and deletion endpoints
type FilesHandler struct {
	service mediastore.Service
}

// NewFilesHandler creates a files handler backed by the given service
func NewFilesHandler(service mediastore.Service) *FilesHandler {
	return &FilesHandler{service: service}
}

// Routes returns the router for file endpoints
func (h *FilesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.UploadFile)
	r.Delete("/", h.DeleteFile)
	return r
}

// UploadFileResponse represents the stored reference returned to the
// caller, which persists it in its own record.
type UploadFileResponse struct {
	BackendID        string `json:"backend_id"`
	ProviderObjectID string `json:"provider_object_id"`
	Link             string `json:"link"`
	SizeBytes        int64  `json:"size_bytes"`
	MimeType         string `json:"mime_type,omitempty"`
}

// DeleteFileRequest represents the request to delete a stored object
type DeleteFileRequest struct {
	Link string `json:"link"`
}

// UploadFile places a multipart upload on the least-loaded backend.
// Form fields: owner_id (required), event_id (optional), file (required).
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		slog.Error("Failed to parse multipart form", "error", err)
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	ownerID, err := uuid.Parse(r.FormValue("owner_id"))
	if err != nil {
		slog.Error("Invalid owner ID", "owner_id", r.FormValue("owner_id"), "error", err)
		http.Error(w, "Invalid owner ID", http.StatusBadRequest)
		return
	}

	var eventID *uuid.UUID
	if raw := r.FormValue("event_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			slog.Error("Invalid event ID", "event_id", raw, "error", err)
			http.Error(w, "Invalid event ID", http.StatusBadRequest)
			return
		}
		eventID = &parsed
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ref, err := h.service.PlaceAndUpload(r.Context(), mediastore.PlaceAndUploadRequest{
		OwnerID:      ownerID,
		EventID:      eventID,
		DisplayName:  header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		DeclaredSize: header.Size,
		Reader:       file,
	})
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, UploadFileResponse{
		BackendID:        ref.BackendID,
		ProviderObjectID: ref.ProviderObjectID,
		Link:             ref.Link,
		SizeBytes:        ref.SizeBytes,
		MimeType:         ref.MimeType,
	})
}

// DeleteFile removes a stored object by its retrieval link.
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	var req DeleteFileRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		slog.Error("Failed to decode request", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Link == "" {
		http.Error(w, "link is required", http.StatusBadRequest)
		return
	}

	if err := h.service.RemoveStoredObject(r.Context(), req.Link); err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.NoContent(w, r)
}

// renderServiceError maps the service's error kinds onto HTTP statuses.
// Message text stays terse; end-user wording is the caller's job.
func renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, mediastore.ErrNoBackendAvailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, mediastore.ErrStorageNearlyFull):
		status = http.StatusInsufficientStorage
	case errors.Is(err, mediastore.ErrBackendNotFound):
		status = http.StatusNotFound
	case errors.Is(err, mediastore.ErrUnparseableLink):
		status = http.StatusBadRequest
	}

	slog.Error("Service operation failed", "error", err, "status", status)
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": err.Error()})
}
