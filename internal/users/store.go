// Package users persists registered chat users keyed by user id.
package users

import (
	"errors"
	"sort"
	"strconv"
	"sync"

	"ytdlp-telegram-bot/internal/domain"
)

// ErrNotRegistered is returned for operations on unknown users.
var ErrNotRegistered = errors.New("user not registered")

// Store defines persistence operations for user records.
type Store interface {
	Get(key string) (domain.UserRecord, bool)
	Set(key string, record domain.UserRecord) error
	Has(key string) bool
	Keys() []string
}

// Key returns the store key of a chat user id.
func Key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// MemoryStore keeps users in memory only.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]domain.UserRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]domain.UserRecord)}
}

func (s *MemoryStore) Get(key string) (domain.UserRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.users[key]
	return record, ok
}

func (s *MemoryStore) Set(key string, record domain.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[key] = record
	return nil
}

func (s *MemoryStore) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.users)
}

func sortedKeys(users map[string]domain.UserRecord) []string {
	keys := make([]string, 0, len(users))
	for key := range users {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
