package mediastore

import (
	"time"

	"github.com/google/uuid"
)

// Default policy values. All of them are overridable through the service
// and monitor options; see service_impl.go and monitor.go.
const (
	// DefaultAlertThreshold is the usage ratio at or above which a backend
	// is considered nearly full.
	DefaultAlertThreshold = 0.90

	// DefaultFallbackTotalBytes substitutes a provider-reported "unlimited"
	// quota so that ratio math stays defined. 10 GiB.
	DefaultFallbackTotalBytes = int64(10) << 30

	// DefaultProviderTimeout bounds every single provider call (probe,
	// container lookup/create, upload, grant, delete).
	DefaultProviderTimeout = 30 * time.Second

	// RootContainerName is the fixed top-level container under which all
	// owner namespaces live on every backend.
	RootContainerName = "artreg-media"

	// Owner and event container name prefixes. The prefix keeps owner
	// containers from colliding with unrelated folders under the root.
	OwnerContainerPrefix = "user-"
	EventContainerPrefix = "event-"
)

// StorageBackend is one configured remote storage account with its own
// quota. Usage figures are provider-reported snapshots written by the
// capacity monitor; readers may observe figures up to one polling
// interval stale.
type StorageBackend struct {
	ID           string     `json:"id"`
	Credential   string     `json:"credential"` // opaque credential handle, resolved by the provider
	IsActive     bool       `json:"is_active"`
	UsedBytes    int64      `json:"used_bytes"`
	TotalBytes   int64      `json:"total_bytes"`
	LastPolledAt *time.Time `json:"last_polled_at,omitempty"`
}

// UsageRatio returns used/total for the backend. A backend with no known
// total reports 0 so that it is never treated as full by accident before
// its first successful poll.
func (b *StorageBackend) UsageRatio() float64 {
	if b.TotalBytes <= 0 {
		return 0
	}
	return float64(b.UsedBytes) / float64(b.TotalBytes)
}

// UsageSnapshot is one normalized probe result for a backend.
type UsageSnapshot struct {
	BackendID  string    `json:"backend_id"`
	UsedBytes  int64     `json:"used_bytes"`
	TotalBytes int64     `json:"total_bytes"`
	PolledAt   time.Time `json:"polled_at"`
}

// Ratio returns used/total for the snapshot.
func (s UsageSnapshot) Ratio() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	return float64(s.UsedBytes) / float64(s.TotalBytes)
}

// NamespaceHandle identifies the resolved container hierarchy for an
// owner (and optionally an event) on one backend. ContainerID is the
// deepest container and is the upload target.
type NamespaceHandle struct {
	BackendID   string     `json:"backend_id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	EventID     *uuid.UUID `json:"event_id,omitempty"`
	ContainerID string     `json:"container_id"`
}

// StoredObjectRef is the stable reference returned for an uploaded
// object. Link embeds the provider object id so deletion can recover it
// without a side table.
type StoredObjectRef struct {
	BackendID        string `json:"backend_id"`
	ProviderObjectID string `json:"provider_object_id"`
	Link             string `json:"link"`
	SizeBytes        int64  `json:"size_bytes"`
	MimeType         string `json:"mime_type,omitempty"`
}

// CapacityAlert is a transient event raised when a backend crosses the
// usage threshold. It is handed to the notifier and not persisted.
type CapacityAlert struct {
	BackendID  string    `json:"backend_id"`
	UsageRatio float64   `json:"usage_ratio"`
	Message    string    `json:"message"`
	RaisedAt   time.Time `json:"raised_at"`
}

// Admin is one account holding an administrative role, the recipient set
// for capacity alerts.
type Admin struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name,omitempty"`
}

// QuotaInfo is the provider's raw quota report. TotalBytes == 0 means the
// provider reports no explicit limit; callers substitute a configured
// fallback before doing ratio math.
type QuotaInfo struct {
	UsedBytes  int64
	TotalBytes int64
}

// ProviderObject is the provider's description of a newly uploaded
// object. SizeBytes may be 0 when the provider does not echo a size.
type ProviderObject struct {
	ID        string
	Link      string
	SizeBytes int64
}
