package mediastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// service implements the Service interface
type service struct {
	registry        Registry
	providers       map[string]Provider
	operatorAccount string
	alertThreshold  float64
	providerTimeout time.Duration
	logger          *slog.Logger
	locks           *keyedMutex
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRegistry sets the backend registry for the service
func WithRegistry(registry Registry) Option {
	return func(s *service) {
		s.registry = registry
	}
}

// WithProvider binds a storage provider to a backend id
func WithProvider(backendID string, provider Provider) Option {
	return func(s *service) {
		if s.providers == nil {
			s.providers = make(map[string]Provider)
		}
		s.providers[backendID] = provider
	}
}

// WithOperatorAccount sets the named account that receives a write grant
// on every uploaded object
func WithOperatorAccount(account string) Option {
	return func(s *service) {
		s.operatorAccount = account
	}
}

// WithAlertThreshold overrides the usage ratio at which uploads are
// rejected (default 0.90)
func WithAlertThreshold(threshold float64) Option {
	return func(s *service) {
		s.alertThreshold = threshold
	}
}

// WithProviderTimeout overrides the per-call timeout applied to every
// provider operation (default 30s)
func WithProviderTimeout(timeout time.Duration) Option {
	return func(s *service) {
		s.providerTimeout = timeout
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		providers:       make(map[string]Provider),
		alertThreshold:  DefaultAlertThreshold,
		providerTimeout: DefaultProviderTimeout,
		locks:           newKeyedMutex(),
	}

	for _, option := range options {
		option(s)
	}

	if s.registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

func (s *service) provider(backendID string) (Provider, error) {
	p, ok := s.providers[backendID]
	if !ok {
		return nil, fmt.Errorf("no provider bound for backend %s: %w", backendID, ErrBackendNotFound)
	}
	return p, nil
}

// callCtx bounds a single provider call.
func (s *service) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.providerTimeout)
}

// SelectBackend returns the active backend with the smallest used_bytes.
// Ties break by id order so placement stays deterministic.
func (s *service) SelectBackend(ctx context.Context) (*StorageBackend, error) {
	backends, err := s.registry.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active backends: %w", err)
	}
	if len(backends) == 0 {
		return nil, ErrNoBackendAvailable
	}

	sort.Slice(backends, func(i, j int) bool {
		if backends[i].UsedBytes != backends[j].UsedBytes {
			return backends[i].UsedBytes < backends[j].UsedBytes
		}
		return backends[i].ID < backends[j].ID
	})

	return backends[0], nil
}

func (s *service) ListBackends(ctx context.Context) ([]*StorageBackend, error) {
	return s.registry.ListActive(ctx)
}

func (s *service) Upload(ctx context.Context, req UploadRequest) (*StoredObjectRef, error) {
	backend, err := s.registry.Get(ctx, req.BackendID)
	if err != nil {
		return nil, err
	}

	// Synchronous capacity guard on the last-known snapshot. The monitor
	// refreshes the snapshot independently; the guard must hold even if
	// the monitor is behind.
	if ratio := backend.UsageRatio(); ratio >= s.alertThreshold {
		return nil, fmt.Errorf("backend %s at ratio %.4f: %w", backend.ID, ratio, ErrStorageNearlyFull)
	}

	provider, err := s.provider(req.BackendID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.callCtx(ctx)
	defer cancel()

	obj, err := provider.Upload(callCtx, UploadParams{
		ContainerID: req.ContainerID,
		Name:        req.DisplayName,
		MimeType:    req.MimeType,
		Reader:      req.Reader,
	})
	if err != nil {
		return nil, &UploadError{BackendID: req.BackendID, Name: req.DisplayName, Op: "upload", Err: err}
	}

	grants := []AccessGrant{
		{Role: GrantRoleReader, Public: true},
	}
	if s.operatorAccount != "" {
		grants = append(grants, AccessGrant{Role: GrantRoleWriter, Account: s.operatorAccount})
	}

	// The full set goes out as one provider write. Providers whose ACLs
	// are whole-document replacements would otherwise drop the public
	// read grant when the operator grant lands second.
	grantCtx, cancelGrant := s.callCtx(ctx)
	err = provider.GrantAccess(grantCtx, obj.ID, grants)
	cancelGrant()
	if err != nil {
		// The object exists but is not fully configured. Delete it
		// best-effort so no half-permissioned object leaks.
		s.rollbackUpload(ctx, provider, req.BackendID, obj.ID)
		return nil, &UploadError{BackendID: req.BackendID, Name: req.DisplayName, Op: "grant", Err: err}
	}

	size := obj.SizeBytes
	if size == 0 {
		size = req.DeclaredSize
	}

	return &StoredObjectRef{
		BackendID:        req.BackendID,
		ProviderObjectID: obj.ID,
		Link:             obj.Link,
		SizeBytes:        size,
		MimeType:         req.MimeType,
	}, nil
}

func (s *service) rollbackUpload(ctx context.Context, provider Provider, backendID, objectID string) {
	callCtx, cancel := s.callCtx(ctx)
	defer cancel()

	if err := provider.Delete(callCtx, objectID); err != nil && !errors.Is(err, ErrObjectNotFound) {
		s.logger.Warn("rollback of partially configured object failed",
			"backend_id", backendID, "object_id", objectID, "error", err)
	}
}

func (s *service) PlaceAndUpload(ctx context.Context, req PlaceAndUploadRequest) (*StoredObjectRef, error) {
	backend, err := s.SelectBackend(ctx)
	if err != nil {
		return nil, err
	}

	ns, err := s.EnsureNamespace(ctx, backend.ID, req.OwnerID, req.EventID)
	if err != nil {
		return nil, err
	}

	return s.Upload(ctx, UploadRequest{
		BackendID:    backend.ID,
		ContainerID:  ns.ContainerID,
		DisplayName:  req.DisplayName,
		MimeType:     req.MimeType,
		DeclaredSize: req.DeclaredSize,
		Reader:       req.Reader,
	})
}

// RemoveStoredObject resolves the owning provider by asking each bound
// provider, in backend-id order, whether it recognizes the link.
func (s *service) RemoveStoredObject(ctx context.Context, link string) error {
	ids := make([]string, 0, len(s.providers))
	for id := range s.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		provider := s.providers[id]

		objectID, err := provider.ObjectIDFromLink(link)
		if err != nil {
			if errors.Is(err, ErrUnparseableLink) {
				continue
			}
			return &DeleteError{Link: link, Err: err}
		}

		callCtx, cancel := s.callCtx(ctx)
		err = provider.Delete(callCtx, objectID)
		cancel()
		if err != nil && !errors.Is(err, ErrObjectNotFound) {
			return &DeleteError{Link: link, Err: err}
		}
		if errors.Is(err, ErrObjectNotFound) {
			s.logger.Debug("object already gone", "backend_id", id, "object_id", objectID)
		}
		return nil
	}

	return &DeleteError{Link: link, Err: ErrUnparseableLink}
}
