// Package memory provides in-memory implementations of the mediastore
// registry and admin directory, suitable for tests and development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artreg/mediastore/pkg/mediastore"
)

// Repository is an in-memory implementation of mediastore.Registry and
// mediastore.AdminDirectory.
type Repository struct {
	mu       sync.RWMutex
	backends map[string]*mediastore.StorageBackend
	admins   []*mediastore.Admin
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		backends: make(map[string]*mediastore.StorageBackend),
	}
}

// AddBackend registers a backend. Existing usage figures for the same id
// are overwritten.
func (r *Repository) AddBackend(backend *mediastore.StorageBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *backend
	r.backends[backend.ID] = &copied
}

// SetActive flips a backend's activation flag. Deactivation is the
// removal mechanism; backends are never deleted at runtime.
func (r *Repository) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	backend, ok := r.backends[id]
	if !ok {
		return mediastore.ErrBackendNotFound
	}
	backend.IsActive = active
	return nil
}

// AddAdmin registers an alert recipient.
func (r *Repository) AddAdmin(admin *mediastore.Admin) {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *admin
	r.admins = append(r.admins, &copied)
}

// ListActive returns all backends with IsActive set.
func (r *Repository) ListActive(ctx context.Context) ([]*mediastore.StorageBackend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*mediastore.StorageBackend
	for _, backend := range r.backends {
		if backend.IsActive {
			copied := *backend
			active = append(active, &copied)
		}
	}
	return active, nil
}

// Get returns the backend with the given id.
func (r *Repository) Get(ctx context.Context, id string) (*mediastore.StorageBackend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backend, ok := r.backends[id]
	if !ok {
		return nil, mediastore.ErrBackendNotFound
	}
	copied := *backend
	return &copied, nil
}

// UpdateUsage persists new usage figures and stamps the poll time.
func (r *Repository) UpdateUsage(ctx context.Context, id string, usedBytes, totalBytes int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	backend, ok := r.backends[id]
	if !ok {
		return mediastore.ErrBackendNotFound
	}

	now := time.Now().UTC()
	backend.UsedBytes = usedBytes
	backend.TotalBytes = totalBytes
	backend.LastPolledAt = &now
	return nil
}

// ListAdmins returns all registered administrative accounts.
func (r *Repository) ListAdmins(ctx context.Context) ([]*mediastore.Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	admins := make([]*mediastore.Admin, 0, len(r.admins))
	for _, admin := range r.admins {
		copied := *admin
		admins = append(admins, &copied)
	}
	return admins, nil
}
