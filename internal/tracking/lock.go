package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultCarrierLockTTL = 30 * time.Second

// CarrierLocker serializes ping processing per carrier.
type CarrierLocker interface {
	Acquire(ctx context.Context, carrierID uuid.UUID) (release func(), ok bool, err error)
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	CarrierLockKey(carrierID string) string
}

// CarrierLock combines an in-process keyed mutex with a Redis SETNX lock so
// concurrent pings for one carrier never interleave, within an instance or
// across instances. Different carriers proceed in parallel. Entries are
// refcounted and evicted once no goroutine holds or waits on them, so the
// map stays bounded by concurrency rather than by carrier population.
type CarrierLock struct {
	client redisStore
	ttl    time.Duration

	mu     sync.Mutex
	inProc map[uuid.UUID]*carrierLockEntry
}

type carrierLockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewCarrierLock constructs the per-carrier lock.
func NewCarrierLock(client redisStore, ttl time.Duration) (*CarrierLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for carrier lock")
	}
	if ttl <= 0 {
		ttl = defaultCarrierLockTTL
	}
	return &CarrierLock{
		client: client,
		ttl:    ttl,
		inProc: map[uuid.UUID]*carrierLockEntry{},
	}, nil
}

// Acquire blocks on the in-process mutex for the carrier, then takes the
// distributed SETNX lock. ok=false means another instance holds the carrier;
// the caller should drop or retry the ping later.
func (l *CarrierLock) Acquire(ctx context.Context, carrierID uuid.UUID) (func(), bool, error) {
	entry := l.checkout(carrierID)
	entry.mu.Lock()

	owner := uuid.NewString()
	key := l.client.CarrierLockKey(carrierID.String())

	acquired, err := l.client.SetNX(ctx, key, owner, l.ttl)
	if err != nil {
		entry.mu.Unlock()
		l.checkin(carrierID, entry)
		return nil, false, fmt.Errorf("setnx carrier lock: %w", err)
	}
	if !acquired {
		entry.mu.Unlock()
		l.checkin(carrierID, entry)
		return nil, false, nil
	}

	release := func() {
		defer l.checkin(carrierID, entry)
		defer entry.mu.Unlock()
		value, err := l.client.Get(context.Background(), key)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return
			}
			return
		}
		if value != owner {
			return
		}
		_ = l.client.Del(context.Background(), key)
	}
	return release, true, nil
}

// checkout returns the carrier's entry with its refcount raised. The caller
// must pair it with checkin once done with the entry's mutex.
func (l *CarrierLock) checkout(carrierID uuid.UUID) *carrierLockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.inProc[carrierID]
	if !ok {
		entry = &carrierLockEntry{}
		l.inProc[carrierID] = entry
	}
	entry.refs++
	return entry
}

func (l *CarrierLock) checkin(carrierID uuid.UUID, entry *carrierLockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs <= 0 {
		delete(l.inProc, carrierID)
	}
}
