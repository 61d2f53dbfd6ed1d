package users

import (
	"context"
	"sync"

	"github.com/MrEthical07/phoneauth"
	"github.com/google/uuid"
)

// MemoryStore keeps users in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]phoneauth.UserRecord
	byPhone map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    map[string]phoneauth.UserRecord{},
		byPhone: map[string]string{},
	}
}

// CreateUser stores u. An empty UserID is replaced by a random UUID.
func (s *MemoryStore) CreateUser(_ context.Context, u phoneauth.UserRecord) (phoneauth.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byPhone[u.Phone]; ok {
		return phoneauth.UserRecord{}, phoneauth.ErrUserExists
	}
	if u.UserID == "" {
		u.UserID = uuid.NewString()
	}
	if _, ok := s.byID[u.UserID]; ok {
		return phoneauth.UserRecord{}, phoneauth.ErrUserExists
	}
	s.byID[u.UserID] = u
	s.byPhone[u.Phone] = u.UserID
	return u, nil
}

func (s *MemoryStore) GetUserByPhone(_ context.Context, phone string) (phoneauth.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPhone[phone]
	if !ok {
		return phoneauth.UserRecord{}, phoneauth.ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, userID string) (phoneauth.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[userID]
	if !ok {
		return phoneauth.UserRecord{}, phoneauth.ErrUserNotFound
	}
	return u, nil
}
