package mediastore

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Service is the placement entry point exposed to the surrounding
// application layer. It composes backend selection, namespace
// provisioning, upload and deletion; capacity polling runs separately
// in Monitor and never blocks these paths.
type Service interface {
	// SelectBackend returns the active backend with the least used
	// bytes, or ErrNoBackendAvailable when no active backend exists.
	SelectBackend(ctx context.Context) (*StorageBackend, error)

	// EnsureNamespace resolves or creates the container hierarchy for
	// the owner (and optionally event) on the given backend. Repeated
	// calls with identical arguments resolve to the same container.
	EnsureNamespace(ctx context.Context, backendID string, ownerID uuid.UUID, eventID *uuid.UUID) (*NamespaceHandle, error)

	// Upload streams an object into an already-resolved namespace on an
	// explicit backend. It rejects with ErrStorageNearlyFull before any
	// bytes are streamed when the backend's last-known usage ratio is at
	// or above the capacity threshold.
	Upload(ctx context.Context, req UploadRequest) (*StoredObjectRef, error)

	// PlaceAndUpload selects the least-loaded backend, provisions the
	// namespace there and uploads. This is the composition used by the
	// application's file handlers.
	PlaceAndUpload(ctx context.Context, req PlaceAndUploadRequest) (*StoredObjectRef, error)

	// RemoveStoredObject recovers the provider object id from a
	// retrieval link and deletes the object. Deleting an object the
	// provider no longer has is treated as success.
	RemoveStoredObject(ctx context.Context, link string) error

	// ListBackends returns the active backends with their last-known
	// usage snapshots.
	ListBackends(ctx context.Context) ([]*StorageBackend, error)
}

// UploadRequest contains parameters for uploading into a resolved
// namespace.
type UploadRequest struct {
	BackendID    string
	ContainerID  string
	DisplayName  string
	MimeType     string
	DeclaredSize int64
	Reader       io.Reader
}

// PlaceAndUploadRequest contains parameters for the full placement path.
type PlaceAndUploadRequest struct {
	OwnerID      uuid.UUID
	EventID      *uuid.UUID
	DisplayName  string
	MimeType     string
	DeclaredSize int64
	Reader       io.Reader
}
