package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryTier is the request-scoped/in-process tier: an expirable LRU.
type MemoryTier struct {
	lru *expirable.LRU[string, []byte]
}

func NewMemoryTier(size int, ttl time.Duration) *MemoryTier {
	if size <= 0 {
		size = 1024
	}
	return &MemoryTier{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (m *MemoryTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

func (m *MemoryTier) Set(ctx context.Context, key string, payload []byte) error {
	_ = ctx
	m.lru.Add(key, payload)
	return nil
}

func (m *MemoryTier) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.lru.Remove(key)
	return nil
}

// MemoryLocker implements Locker for tests and single-process runs with the
// same acquire/expire/ownership semantics as the redis locker.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memLock
	clock func() time.Time
}

type memLock struct {
	token   string
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]memLock{}, clock: time.Now}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return "", false, nil
	}
	token := newLockToken()
	l.held[key] = memLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *MemoryLocker) Release(ctx context.Context, key, token string) error {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[key]; ok && cur.token == token {
		delete(l.held, key)
	}
	return nil
}
