package intents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLeaseTTL = 5 * time.Minute

// Lease excludes concurrent Process calls against one intent.
type Lease interface {
	Acquire(ctx context.Context, intentID uuid.UUID) (bool, error)
	Release(ctx context.Context, intentID uuid.UUID) error
}

// leaseStore defines the Redis operations the lease uses.
type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LeaseKey(intentID string) string
}

// RedisLease implements Lease with SETNX + TTL. The TTL bounds how long a
// crashed worker can block an intent.
type RedisLease struct {
	client leaseStore
	ttl    time.Duration

	mu     sync.Mutex
	owners map[uuid.UUID]string
}

// NewRedisLease constructs a Redis-backed per-intent lease.
func NewRedisLease(client leaseStore, ttl time.Duration) (*RedisLease, error) {
	if client == nil {
		return nil, errors.New("redis client required for lease")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLease{client: client, ttl: ttl, owners: make(map[uuid.UUID]string)}, nil
}

// Acquire tries to own the intent's lease for the configured TTL.
func (l *RedisLease) Acquire(ctx context.Context, intentID uuid.UUID) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.client.LeaseKey(intentID.String()), owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.mu.Lock()
		l.owners[intentID] = owner
		l.mu.Unlock()
	}
	return ok, nil
}

// Release frees the lease only if this instance still owns it.
func (l *RedisLease) Release(ctx context.Context, intentID uuid.UUID) error {
	l.mu.Lock()
	owner, held := l.owners[intentID]
	l.mu.Unlock()
	if !held {
		return nil
	}

	forget := func() {
		l.mu.Lock()
		delete(l.owners, intentID)
		l.mu.Unlock()
	}

	key := l.client.LeaseKey(intentID.String())
	value, err := l.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			forget()
			return nil
		}
		return fmt.Errorf("read lease owner: %w", err)
	}
	if value != owner {
		forget()
		return nil
	}
	if err := l.client.Del(ctx, key); err != nil {
		return fmt.Errorf("delete lease: %w", err)
	}
	forget()
	return nil
}
