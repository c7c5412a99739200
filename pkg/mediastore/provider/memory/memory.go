// Package memory provides an in-memory mediastore.Provider used in
// tests and development. It records per-operation call counts so
// idempotence and pre-check properties are directly assertable.
package memory

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/artreg/mediastore/pkg/mediastore"
)

var linkIDPattern = regexp.MustCompile(`[?&]id=([A-Za-z0-9-]+)`)

// Stats holds per-operation call counts.
type Stats struct {
	FindCalls   int
	CreateCalls int
	UploadCalls int
	GrantCalls  int
	DeleteCalls int
	QuotaCalls  int
}

type container struct {
	parentID string
	name     string
}

type object struct {
	containerID string
	name        string
	mimeType    string
	data        []byte
	grants      []mediastore.AccessGrant
}

// Provider is an in-memory implementation of the mediastore.Provider
// interface.
type Provider struct {
	mu         sync.RWMutex
	backendID  string
	totalBytes int64
	seedUsed   int64
	containers map[string]container
	objects    map[string]object
	stats      Stats

	// Fault injection for tests. A non-nil error fails the matching
	// operation.
	FailUpload error
	FailGrant  error
	FailQuota  error

	// OmitSize makes Upload report a zero size, simulating a provider
	// that does not echo object sizes.
	OmitSize bool
}

// New creates an in-memory provider for the given backend id.
// totalBytes == 0 simulates a provider that reports no explicit quota
// limit.
func New(backendID string, totalBytes int64) *Provider {
	return &Provider{
		backendID:  backendID,
		totalBytes: totalBytes,
		containers: make(map[string]container),
		objects:    make(map[string]object),
	}
}

// Stats returns a copy of the recorded call counts.
func (p *Provider) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// SetUsedBytes seeds a base usage figure that quota probes report on
// top of the stored objects' sizes.
func (p *Provider) SetUsedBytes(used int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seedUsed = used
}

// ObjectGrants returns the grants applied to an object, for assertions.
func (p *Provider) ObjectGrants(objectID string) []mediastore.AccessGrant {
	p.mu.RLock()
	defer p.mu.RUnlock()
	obj, ok := p.objects[objectID]
	if !ok {
		return nil
	}
	return append([]mediastore.AccessGrant(nil), obj.grants...)
}

// ObjectCount returns the number of stored objects.
func (p *Provider) ObjectCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.objects)
}

// HasObject reports whether the provider still holds the object.
func (p *Provider) HasObject(objectID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.objects[objectID]
	return ok
}

func (p *Provider) FindContainer(ctx context.Context, parentID, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.FindCalls++

	for id, c := range p.containers {
		if c.parentID == parentID && c.name == name {
			return id, nil
		}
	}
	return "", mediastore.ErrContainerNotFound
}

func (p *Provider) CreateContainer(ctx context.Context, parentID, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.CreateCalls++

	id := uuid.NewString()
	p.containers[id] = container{parentID: parentID, name: name}
	return id, nil
}

func (p *Provider) Upload(ctx context.Context, params mediastore.UploadParams) (*mediastore.ProviderObject, error) {
	if p.FailUpload != nil {
		return nil, p.FailUpload
	}

	data, err := io.ReadAll(params.Reader)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.UploadCalls++

	id := uuid.NewString()
	p.objects[id] = object{
		containerID: params.ContainerID,
		name:        params.Name,
		mimeType:    params.MimeType,
		data:        data,
	}

	size := int64(len(data))
	if p.OmitSize {
		size = 0
	}

	return &mediastore.ProviderObject{
		ID:        id,
		Link:      fmt.Sprintf("memory://%s/view?id=%s&export=media", p.backendID, id),
		SizeBytes: size,
	}, nil
}

// GrantAccess replaces the object's grant set, mirroring the
// whole-document ACL semantics of real providers.
func (p *Provider) GrantAccess(ctx context.Context, objectID string, grants []mediastore.AccessGrant) error {
	if p.FailGrant != nil {
		return p.FailGrant
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.GrantCalls++

	obj, ok := p.objects[objectID]
	if !ok {
		return mediastore.ErrObjectNotFound
	}
	obj.grants = append([]mediastore.AccessGrant(nil), grants...)
	p.objects[objectID] = obj
	return nil
}

func (p *Provider) Delete(ctx context.Context, objectID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.DeleteCalls++

	if _, ok := p.objects[objectID]; !ok {
		return mediastore.ErrObjectNotFound
	}
	delete(p.objects, objectID)
	return nil
}

func (p *Provider) Quota(ctx context.Context) (mediastore.QuotaInfo, error) {
	if p.FailQuota != nil {
		return mediastore.QuotaInfo{}, p.FailQuota
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.QuotaCalls++

	used := p.seedUsed
	for _, obj := range p.objects {
		used += int64(len(obj.data))
	}
	return mediastore.QuotaInfo{UsedBytes: used, TotalBytes: p.totalBytes}, nil
}

func (p *Provider) ObjectIDFromLink(link string) (string, error) {
	if !strings.HasPrefix(link, "memory://"+p.backendID+"/") {
		return "", mediastore.ErrUnparseableLink
	}
	match := linkIDPattern.FindStringSubmatch(link)
	if match == nil {
		return "", mediastore.ErrUnparseableLink
	}
	return match[1], nil
}
