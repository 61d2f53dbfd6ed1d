package rbac

import (
	"context"
	"sync"
	"time"
)

type pairKey struct {
	resource string
	user     string
}

// MemoryStore is an in-process [Store]. It is safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	owners      map[string]string
	assignments map[pairKey]Assignment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		owners:      make(map[string]string),
		assignments: make(map[pairKey]Assignment),
	}
}

// SetOwner records userID as the owner of resourceID.
func (m *MemoryStore) SetOwner(resourceID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[resourceID] = userID
}

func (m *MemoryStore) IsOwner(ctx context.Context, userID, resourceID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	owner, ok := m.owners[resourceID]
	return ok && owner == userID, nil
}

func (m *MemoryStore) GetAssignment(ctx context.Context, resourceID, userID string) (Assignment, bool, error) {
	if err := ctx.Err(); err != nil {
		return Assignment{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[pairKey{resource: resourceID, user: userID}]
	return a, ok, nil
}

func (m *MemoryStore) CreateAssignment(ctx context.Context, a Assignment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pairKey{resource: a.ResourceID, user: a.UserID}
	if _, exists := m.assignments[k]; exists {
		return ErrConflict
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.assignments[k] = a
	return nil
}

func (m *MemoryStore) DeleteAssignment(ctx context.Context, resourceID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pairKey{resource: resourceID, user: userID}
	if _, exists := m.assignments[k]; !exists {
		return ErrNotFound
	}
	delete(m.assignments, k)
	return nil
}
