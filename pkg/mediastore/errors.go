package mediastore

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrBackendNotFound indicates a storage backend was not found
	ErrBackendNotFound = errors.New("storage backend not found")

	// ErrNoBackendAvailable indicates no active backend is configured
	ErrNoBackendAvailable = errors.New("no storage backend available")

	// ErrStorageNearlyFull indicates the chosen backend is at or above the
	// capacity threshold and the upload was rejected before any bytes
	// were streamed
	ErrStorageNearlyFull = errors.New("storage backend nearly full")

	// ErrUnparseableLink indicates a retrieval link did not match the
	// provider's link pattern
	ErrUnparseableLink = errors.New("unparseable retrieval link")

	// ErrObjectNotFound indicates the provider has no object for the
	// given id
	ErrObjectNotFound = errors.New("object not found")

	// ErrContainerNotFound indicates a namespace container lookup found
	// no match
	ErrContainerNotFound = errors.New("container not found")
)

// ProbeError represents a failed capacity probe for one backend. Probe
// failures are non-fatal: the monitor keeps the backend's last-known
// usage figures and retries on the next tick.
type ProbeError struct {
	BackendID string
	Err       error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("capacity probe failed for backend %s: %v", e.BackendID, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// ProvisionError represents a provider failure while resolving or
// creating a namespace container.
type ProvisionError struct {
	BackendID string
	Segment   string
	Err       error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning segment %q failed on backend %s: %v", e.Segment, e.BackendID, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// UploadError represents a failed upload, including permission-grant
// failures after the object itself was created.
type UploadError struct {
	BackendID string
	Name      string
	Op        string
	Err       error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload operation %s failed for %q on backend %s: %v", e.Op, e.Name, e.BackendID, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// DeleteError represents a failed deletion of a stored object.
type DeleteError struct {
	Link string
	Err  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete failed for link %s: %v", e.Link, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}
