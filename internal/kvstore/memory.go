package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/registry"
)

var (
	// ErrKeyNotFound is returned by Get for missing or expired keys.
	ErrKeyNotFound = errors.New("key not found")

	// ErrStoreClosed is returned by every operation after Close.
	ErrStoreClosed = errors.New("KV store is closed")
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryKVStore implements core.KVStore in process memory. It also supports
// the list operations the Redis write-back queue needs.
type MemoryKVStore struct {
	mu     sync.RWMutex
	data   map[string]memoryEntry
	lists  map[string][][]byte
	now    func() time.Time
	closed bool
}

// NewMemoryKVStore creates an empty in-memory store.
func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{
		data:  make(map[string]memoryEntry),
		lists: make(map[string][][]byte),
		now:   time.Now,
	}
}

func (m *MemoryKVStore) entry(ttl time.Duration, value []byte) memoryEntry {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	return e
}

// Get retrieves a value by key from the store.
func (m *MemoryKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	e, ok := m.data[key]
	if !ok || e.expired(m.now()) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a key-value pair with an optional TTL.
func (m *MemoryKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.data[key] = m.entry(ttl, value)
	return nil
}

// Delete removes a key from the store.
func (m *MemoryKVStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.data, key)
	delete(m.lists, key)
	return nil
}

// Exists checks if a key exists in the store.
func (m *MemoryKVStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrStoreClosed
	}
	e, ok := m.data[key]
	return ok && !e.expired(m.now()), nil
}

// BatchSet stores multiple key-value pairs atomically with a shared TTL.
func (m *MemoryKVStore) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	for key, value := range items {
		m.data[key] = m.entry(ttl, value)
	}
	return nil
}

// Keys returns every unexpired key that starts with prefix, sorted.
func (m *MemoryKVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	now := m.now()
	var keys []string
	for key, e := range m.data {
		if strings.HasPrefix(key, prefix) && !e.expired(now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ListPush adds a value to the end of a list.
func (m *MemoryKVStore) ListPush(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.lists[key] = append(m.lists[key], append([]byte(nil), value...))
	return nil
}

// ListPopN removes up to n values from the head of a list.
func (m *MemoryKVStore) ListPopN(ctx context.Context, key string, n int) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	list := m.lists[key]
	if n > len(list) {
		n = len(list)
	}
	popped := list[:n:n]
	if rest := list[n:]; len(rest) > 0 {
		m.lists[key] = rest
	} else {
		delete(m.lists, key)
	}
	return popped, nil
}

// ListLength returns the length of a list.
func (m *MemoryKVStore) ListLength(ctx context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrStoreClosed
	}
	return int64(len(m.lists[key])), nil
}

// Close releases the stored data.
func (m *MemoryKVStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	m.lists = nil
	return nil
}

// MemoryKVStoreFactory implements the KVStoreFactory interface for the in-memory store.
type MemoryKVStoreFactory struct{}

// Type returns the type identifier for this factory.
func (f *MemoryKVStoreFactory) Type() string {
	return "memory"
}

// Validate validates the configuration.
func (f *MemoryKVStoreFactory) Validate(config KVStoreConfig) error {
	if config.Type != "memory" {
		return fmt.Errorf("invalid type for memory factory: %s", config.Type)
	}
	return nil
}

// Create creates a new in-memory KV store.
func (f *MemoryKVStoreFactory) Create(config KVStoreConfig) (core.KVStore, error) {
	return NewMemoryKVStore(), nil
}

// MemoryConfigValidator implements the ConfigValidator interface for the in-memory store.
type MemoryConfigValidator struct{}

// Type returns the type identifier for this validator.
func (v *MemoryConfigValidator) Type() string {
	return "memory"
}

// Validate accepts any configuration; the in-memory store has no settings.
func (v *MemoryConfigValidator) Validate(config *registry.InternalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	return nil
}

func validateTimeouts(dial, read, write time.Duration) error {
	if dial <= 0 {
		return fmt.Errorf("dial_timeout must be greater than 0, got: %v", dial)
	}
	if read <= 0 {
		return fmt.Errorf("read_timeout must be greater than 0, got: %v", read)
	}
	if write <= 0 {
		return fmt.Errorf("write_timeout must be greater than 0, got: %v", write)
	}
	return nil
}

func init() {
	RegisterFactory(&MemoryKVStoreFactory{})
	registry.RegisterValidator(&MemoryConfigValidator{})
}
