package mediastore

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Provider defines the interface to one remote object-storage account.
// One Provider instance is bound to one backend's credential set.
type Provider interface {
	// FindContainer looks up a container with the exact name under the
	// given parent ("" means the provider root). It returns
	// ErrContainerNotFound when no such container exists.
	FindContainer(ctx context.Context, parentID, name string) (string, error)

	// CreateContainer creates a container with the given name under the
	// parent and returns its id.
	CreateContainer(ctx context.Context, parentID, name string) (string, error)

	// Upload streams an object into the given container and returns the
	// provider's description of it. SizeBytes may be 0 when the provider
	// does not echo a size.
	Upload(ctx context.Context, params UploadParams) (*ProviderObject, error)

	// GrantAccess applies the access grant set to an existing object in
	// a single provider operation, replacing any earlier grants. ACLs on
	// real providers are whole-document writes, so callers always pass
	// the complete set.
	GrantAccess(ctx context.Context, objectID string, grants []AccessGrant) error

	// Delete removes the object with the given provider id. Deleting an
	// object that no longer exists returns ErrObjectNotFound; callers
	// decide whether that is acceptable.
	Delete(ctx context.Context, objectID string) error

	// Quota reports the account's used and total bytes. TotalBytes == 0
	// means the provider reports no explicit limit.
	Quota(ctx context.Context) (QuotaInfo, error)

	// ObjectIDFromLink extracts the provider object id from a retrieval
	// link previously issued by this provider. It returns
	// ErrUnparseableLink when the link does not match this provider's
	// link pattern.
	ObjectIDFromLink(link string) (string, error)
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ContainerID string
	Name        string
	MimeType    string
	Reader      io.Reader
}

// GrantRole enumerates the access levels a grant can carry.
type GrantRole string

// Grant role constants (typed).
const (
	GrantRoleReader GrantRole = "reader"
	GrantRoleWriter GrantRole = "writer"
)

// AccessGrant describes one permission applied to a stored object.
// Public == true grants the role to anyone with the link; otherwise
// Account names the grantee.
type AccessGrant struct {
	Role    GrantRole
	Public  bool
	Account string
}

// Registry defines the interface for backend persistence. Usage figures
// are written only by the capacity monitor; allocator and uploader reads
// may observe figures up to one polling interval stale, which is
// acceptable.
type Registry interface {
	// ListActive returns all backends with is_active = true, in no
	// guaranteed order.
	ListActive(ctx context.Context) ([]*StorageBackend, error)

	// Get returns the backend with the given id or ErrBackendNotFound.
	Get(ctx context.Context, id string) (*StorageBackend, error)

	// UpdateUsage persists new usage figures and stamps last_polled_at.
	// Safe to call concurrently with reads.
	UpdateUsage(ctx context.Context, id string, usedBytes, totalBytes int64) error
}

// AdminDirectory lists the accounts holding an administrative role, the
// recipient set for capacity alerts.
type AdminDirectory interface {
	ListAdmins(ctx context.Context) ([]*Admin, error)
}

// Notifier is the external notification channel. Delivery failures are
// per-recipient and non-fatal to the caller.
type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, message string) error
}
