// Package session keeps the signed-in user's identity in a local key-value
// store. It never talks to the network.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/Joseda-hg/taskdeck/internal/model"
)

const (
	KeyUserID    = "userId"
	KeyUserName  = "userName"
	KeyUserEmail = "userEmail"
)

// KV is the persistence behind a Store. PutAll and DeleteAll apply keys in
// slice order; implementations with transactions apply them atomically.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	PutAll(ctx context.Context, keys, values []string) error
	DeleteAll(ctx context.Context, keys []string) error
}

type Store struct {
	kv KV
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Set records a signed-in user. The id is written last so a partially
// applied write never reads back as authenticated.
func (s *Store) Set(ctx context.Context, userID, userName, userEmail string) error {
	if userID == "" {
		return fmt.Errorf("set session: empty user id")
	}
	keys := []string{KeyUserName, KeyUserEmail, KeyUserID}
	values := []string{userName, userEmail, userID}
	if err := s.kv.PutAll(ctx, keys, values); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// Clear removes every session key, id first.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.DeleteAll(ctx, []string{KeyUserID, KeyUserName, KeyUserEmail}); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// UserID reports the stored user id. Read errors count as signed out.
func (s *Store) UserID(ctx context.Context) (string, bool) {
	value, ok, err := s.kv.Get(ctx, KeyUserID)
	if err != nil || !ok || value == "" {
		return "", false
	}
	return value, true
}

func (s *Store) IsAuthenticated(ctx context.Context) bool {
	_, ok := s.UserID(ctx)
	return ok
}

func (s *Store) Current(ctx context.Context) (model.Session, bool) {
	id, ok := s.UserID(ctx)
	if !ok {
		return model.Session{}, false
	}
	name, _, _ := s.kv.Get(ctx, KeyUserName)
	email, _, _ := s.kv.Get(ctx, KeyUserEmail)
	return model.Session{UserID: id, UserName: name, UserEmail: email}, true
}

// MemoryKV is a process-local KV for tests and ephemeral runs.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: map[string]string{}}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *MemoryKV) PutAll(_ context.Context, keys, values []string) error {
	if len(keys) != len(values) {
		return fmt.Errorf("put: %d keys but %d values", len(keys), len(values))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, key := range keys {
		m.values[key] = values[i]
	}
	return nil
}

func (m *MemoryKV) DeleteAll(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}
