package repository

import (
	"context"
	"sync"
	"time"

	"staybook/internal/domain"

	"github.com/google/uuid"
)

// memTokenPrefix marks tokens issued by MemoryLockStore so that a failover
// wrapper can route the release back to the store that granted the lock.
const memTokenPrefix = "mem:"

// MemoryLockStore is a single-process LockStore.
type MemoryLockStore struct {
	mu         sync.Mutex
	locks      map[string]lockEntry
	rateLimits map[int64]*rateLimitEntry
	now        func() time.Time
}

type lockEntry struct {
	token     string
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryLockStore() *MemoryLockStore {
	return &MemoryLockStore{
		locks:      make(map[string]lockEntry),
		rateLimits: make(map[int64]*rateLimitEntry),
		now:        time.Now,
	}
}

func (r *MemoryLockStore) AcquireLock(_ context.Context, key string, ttl time.Duration) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if held, ok := r.locks[key]; ok && now.Before(held.expiresAt) {
		return "", domain.ErrLockNotAcquired
	}

	token := memTokenPrefix + uuid.NewString()
	r.locks[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return token, nil
}

func (r *MemoryLockStore) ReleaseLock(_ context.Context, key, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if held, ok := r.locks[key]; ok && held.token == token {
		delete(r.locks, key)
	}
	return nil
}

func (r *MemoryLockStore) CheckRateLimit(_ context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[userID]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
		r.rateLimits[userID] = entry
	} else {
		entry.count++
	}

	return entry.count <= limit, nil
}
