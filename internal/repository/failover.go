package repository

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"staybook/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLockStore uses the primary (Redis) store and switches to the
// fallback (memory) store while the primary is failing.
type FailoverLockStore struct {
	primary   domain.LockStore
	fallback  domain.LockStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverLockStore(primary, fallback domain.LockStore, logger *zerolog.Logger) *FailoverLockStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverLockStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the next call should go to the primary store,
// allowing one probe per recoveryInterval while it is marked down.
func (r *FailoverLockStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverLockStore) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary lock store failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverLockStore) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary lock store recovered")
	}
}

func (r *FailoverLockStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if r.usePrimary() {
		token, err := r.primary.AcquireLock(ctx, key, ttl)
		if err == nil || errors.Is(err, domain.ErrLockNotAcquired) {
			r.markUp()
			return token, err
		}
		r.markDown(err)
	}

	return r.fallback.AcquireLock(ctx, key, ttl)
}

func (r *FailoverLockStore) ReleaseLock(ctx context.Context, key, token string) error {
	if strings.HasPrefix(token, memTokenPrefix) {
		return r.fallback.ReleaseLock(ctx, key, token)
	}

	// A lock granted by the primary expires on its own if release fails.
	if err := r.primary.ReleaseLock(ctx, key, token); err != nil {
		r.markDown(err)
		return err
	}
	return nil
}

func (r *FailoverLockStore) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}

var (
	_ domain.LockStore = (*RedisLockStore)(nil)
	_ domain.LockStore = (*MemoryLockStore)(nil)
	_ domain.LockStore = (*FailoverLockStore)(nil)
)
