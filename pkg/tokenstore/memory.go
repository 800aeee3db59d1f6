package tokenstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps tokens for the lifetime of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*Token
	now    func() time.Time
}

// NewMemoryStore creates a new in-memory token store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		tokens: make(map[string]*Token),
		now:    o.now,
	}
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[key] = &Token{Key: key, Value: value, ExpiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[key]
	if !ok {
		return nil, ErrTokenNotFound
	}
	if tok.ExpiredAt(m.now()) {
		return nil, ErrTokenExpired
	}
	cp := *tok
	return &cp, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, key)
	return nil
}

func (m *MemoryStore) Cleanup(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	count := 0
	for k, tok := range m.tokens {
		if tok.ExpiredAt(now) {
			delete(m.tokens, k)
			count++
		}
	}
	return count, nil
}
