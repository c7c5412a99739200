package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artreg/mediastore/pkg/mediastore"
	memoryprovider "github.com/artreg/mediastore/pkg/mediastore/provider/memory"
	memoryrepo "github.com/artreg/mediastore/pkg/mediastore/repo/memory"
)

func setupRouter(t *testing.T, backends ...*mediastore.StorageBackend) (chi.Router, *memoryrepo.Repository) {
	t.Helper()

	repo := memoryrepo.New()
	options := []mediastore.Option{mediastore.WithRegistry(repo)}
	for _, backend := range backends {
		repo.AddBackend(backend)
		options = append(options, mediastore.WithProvider(backend.ID, memoryprovider.New(backend.ID, backend.TotalBytes)))
	}

	svc, err := mediastore.New(options...)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Mount("/files", NewFilesHandler(svc).Routes())
	r.Mount("/backends", NewBackendsHandler(svc).Routes())
	return r, repo
}

func multipartUpload(t *testing.T, ownerID, eventID, filename, content string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("owner_id", ownerID))
	if eventID != "" {
		require.NoError(t, writer.WriteField("event_id", eventID))
	}
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func TestUploadFile(t *testing.T) {
	router, _ := setupRouter(t, &mediastore.StorageBackend{
		ID: "backup-a", IsActive: true, TotalBytes: 1 << 30,
	})

	t.Run("uploads and returns a stored reference", func(t *testing.T) {
		body, contentType := multipartUpload(t, uuid.NewString(), uuid.NewString(), "poster.png", "pngbytes")

		req := httptest.NewRequest(http.MethodPost, "/files/", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)

		var resp UploadFileResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "backup-a", resp.BackendID)
		assert.NotEmpty(t, resp.Link)
		assert.Equal(t, int64(len("pngbytes")), resp.SizeBytes)
	})

	t.Run("rejects missing owner id", func(t *testing.T) {
		body, contentType := multipartUpload(t, "not-a-uuid", "", "poster.png", "x")

		req := httptest.NewRequest(http.MethodPost, "/files/", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUploadFileNoCapacity(t *testing.T) {
	t.Run("no backends configured", func(t *testing.T) {
		router, _ := setupRouter(t)

		body, contentType := multipartUpload(t, uuid.NewString(), "", "a.txt", "x")
		req := httptest.NewRequest(http.MethodPost, "/files/", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("backend nearly full", func(t *testing.T) {
		router, _ := setupRouter(t, &mediastore.StorageBackend{
			ID: "backup-a", IsActive: true, UsedBytes: 95, TotalBytes: 100,
		})

		body, contentType := multipartUpload(t, uuid.NewString(), "", "a.txt", "x")
		req := httptest.NewRequest(http.MethodPost, "/files/", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInsufficientStorage, rec.Code)
	})
}

func TestDeleteFile(t *testing.T) {
	router, _ := setupRouter(t, &mediastore.StorageBackend{
		ID: "backup-a", IsActive: true, TotalBytes: 1 << 30,
	})

	body, contentType := multipartUpload(t, uuid.NewString(), "", "cv.pdf", "pdfbytes")
	req := httptest.NewRequest(http.MethodPost, "/files/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var uploaded UploadFileResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&uploaded))

	t.Run("deletes by link", func(t *testing.T) {
		payload, err := json.Marshal(DeleteFileRequest{Link: uploaded.Link})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodDelete, "/files/", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("unparseable link", func(t *testing.T) {
		payload, err := json.Marshal(DeleteFileRequest{Link: "https://elsewhere.example/file/9"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodDelete, "/files/", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListBackends(t *testing.T) {
	router, repo := setupRouter(t,
		&mediastore.StorageBackend{ID: "backup-a", IsActive: true, TotalBytes: 1000},
		&mediastore.StorageBackend{ID: "backup-b", IsActive: false, TotalBytes: 1000},
	)
	require.NoError(t, repo.UpdateUsage(context.Background(), "backup-a", 500, 1000))

	req := httptest.NewRequest(http.MethodGet, "/backends/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []BackendResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "backup-a", resp[0].ID)
	assert.Equal(t, 0.5, resp[0].UsageRatio)
}
