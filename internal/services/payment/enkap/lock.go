package enkap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	lockKeyPrefix = "enkap:reconcile:"
	// Lock TTL bounds how long a crashed handler can hold a reference
	lockExpiry     = 10 * time.Second
	lockRetryDelay = 50 * time.Millisecond
)

// RedisLocker implements ReferenceLocker with a Redis SETNX lock, so
// notification handling stays serialized per reference across replicas.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a Redis-backed reference locker
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Lock blocks until the reference lock is acquired or ctx is done
func (l *RedisLocker) Lock(ctx context.Context, merchantReference string) (func(), error) {
	key := lockKeyPrefix + merchantReference

	for {
		set, err := l.client.SetNX(ctx, key, "1", lockExpiry).Result()
		if err != nil {
			return nil, fmt.Errorf("redis SETNX error: %w", err)
		}
		if set {
			return func() {
				// Best effort release; the TTL covers a lost delete
				l.client.Del(context.Background(), key)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

// LocalLocker implements ReferenceLocker with an in-process mutex map.
// Used in tests and single-instance deployments without Redis.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalLocker creates an in-process reference locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for the given reference
func (l *LocalLocker) Lock(_ context.Context, merchantReference string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[merchantReference]
	if !ok {
		m = &sync.Mutex{}
		l.locks[merchantReference] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
