package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned by Acquire when another holder owns the lease.
var ErrBusy = errors.New("lease already held")

// Locker hands out scoped leases keyed by an arbitrary string.
// It is backed by redislock; a zero-value Locker hands out no-op leases.
type Locker struct {
	client *redislock.Client
}

// New creates a Locker from the configuration. When locking is disabled it
// returns a Locker whose leases are no-ops.
func New(cfg Config) (*Locker, error) {
	if !cfg.Enabled {
		return &Locker{}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Locker{client: redislock.New(rdb)}, nil
}

// Lease is a held lock. Release must be called on every exit path.
type Lease struct {
	lock *redislock.Lock
}

// Release gives up the lease. Releasing an already-expired lease is not an error.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.lock == nil {
		return nil
	}
	if err := l.lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return err
	}
	return nil
}

// Acquire obtains the lease for key, valid for ttl. It returns ErrBusy when
// the lease is held elsewhere so callers can report "run already in progress"
// instead of queueing behind it.
func (lk *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if lk == nil || lk.client == nil {
		return &Lease{}, nil
	}

	lock, err := lk.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lease %s: %w", key, err)
	}

	return &Lease{lock: lock}, nil
}
