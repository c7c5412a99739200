package mediastore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes find-or-create per namespace segment. Without
// it, two concurrent first-uploads sharing a segment (the root, or the
// same owner under different events) could each create the container.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

// lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func ownerContainerName(ownerID uuid.UUID) string {
	return OwnerContainerPrefix + ownerID.String()
}

func eventContainerName(eventID uuid.UUID) string {
	return EventContainerPrefix + eventID.String()
}

// EnsureNamespace resolves or creates, level by level, the fixed root
// container, the owner container and (when an event id is given) the
// event container on the backend. Each level is a find-or-create against
// the provider, serialized under its own segment lock: the backend-wide
// root and the shared owner container are racy between unrelated
// callers, not just between callers with identical arguments.
func (s *service) EnsureNamespace(ctx context.Context, backendID string, ownerID uuid.UUID, eventID *uuid.UUID) (*NamespaceHandle, error) {
	if _, err := s.registry.Get(ctx, backendID); err != nil {
		return nil, err
	}

	provider, err := s.provider(backendID)
	if err != nil {
		return nil, err
	}

	rootID, err := s.lockedFindOrCreate(ctx, provider, backendID, backendID, "", RootContainerName)
	if err != nil {
		return nil, err
	}

	ownerKey := backendID + "/" + ownerID.String()
	ownerContainerID, err := s.lockedFindOrCreate(ctx, provider, backendID, ownerKey, rootID, ownerContainerName(ownerID))
	if err != nil {
		return nil, err
	}

	containerID := ownerContainerID
	if eventID != nil {
		eventKey := ownerKey + "/" + eventID.String()
		containerID, err = s.lockedFindOrCreate(ctx, provider, backendID, eventKey, ownerContainerID, eventContainerName(*eventID))
		if err != nil {
			return nil, err
		}
	}

	return &NamespaceHandle{
		BackendID:   backendID,
		OwnerID:     ownerID,
		EventID:     eventID,
		ContainerID: containerID,
	}, nil
}

func (s *service) lockedFindOrCreate(ctx context.Context, provider Provider, backendID, key, parentID, name string) (string, error) {
	unlock := s.locks.lock(key)
	defer unlock()
	return s.findOrCreate(ctx, provider, backendID, parentID, name)
}

func (s *service) findOrCreate(ctx context.Context, provider Provider, backendID, parentID, name string) (string, error) {
	findCtx, cancel := s.callCtx(ctx)
	id, err := provider.FindContainer(findCtx, parentID, name)
	cancel()
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrContainerNotFound) {
		return "", &ProvisionError{BackendID: backendID, Segment: name, Err: fmt.Errorf("lookup: %w", err)}
	}

	createCtx, cancel := s.callCtx(ctx)
	id, err = provider.CreateContainer(createCtx, parentID, name)
	cancel()
	if err != nil {
		return "", &ProvisionError{BackendID: backendID, Segment: name, Err: fmt.Errorf("create: %w", err)}
	}

	return id, nil
}
