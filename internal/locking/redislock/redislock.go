// Package redislock implements locking.Locker against Redis: SET key token
// NX PX ttl to acquire, a Lua script comparing the token before DEL to
// release, and github.com/sethvargo/go-retry's Fibonacci backoff around the
// acquire attempt — the standard single-instance Redis mutex recipe.
package redislock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	crierrors "github.com/critdb/crit/internal/errors"
	"github.com/critdb/crit/internal/locking"
)

// releaseScript deletes key only if its value still matches the token this
// Locker set, so a lease can never release a lock some other holder has
// since acquired after this one's TTL expired.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Locker acquires leases as keys in a Redis keyspace.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	// MaxRetries bounds the acquisition backoff within one Acquire call; a
	// caller wanting unbounded re-entry after that should call Acquire again
	// with a fresh context.
	maxRetries uint64
}

// Config configures a Locker.
type Config struct {
	Addr       string
	Password   string
	DB         int
	TTL        time.Duration
	MaxRetries uint64
}

// New connects to Redis and returns a ready-to-use Locker. TTL defaults to
// 30s and MaxRetries to 5 if left zero, matching the corpus's own retry
// policy for idempotency-store operations.
func New(cfg Config) (*Locker, error) {
	if cfg.TTL == 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, crierrors.LockUnavailable(cfg.Addr, err)
	}
	return &Locker{client: client, ttl: cfg.TTL, maxRetries: cfg.MaxRetries}, nil
}

type lease struct {
	client *redis.Client
	key    string
	token  string
}

func (le *lease) Release(ctx context.Context) error {
	res, err := releaseScript.Run(ctx, le.client, []string{le.key}, le.token).Int()
	if err != nil {
		return crierrors.LockUnavailable(le.key, err)
	}
	if res == 0 {
		// The key had already expired or was taken over by another holder;
		// not an error for the releasing side, which no longer holds it
		// either way.
		return nil
	}
	return nil
}

// Acquire attempts SET key token NX PX ttl, retrying on failure with
// Fibonacci backoff until ctx is done or MaxRetries is exhausted.
func (l *Locker) Acquire(ctx context.Context, key string) (locking.Lease, error) {
	token := uuid.NewString()
	b := retry.NewFibonacci(100 * time.Millisecond)
	b = retry.WithMaxRetries(l.maxRetries, b)

	var acquired bool
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return retry.RetryableError(err)
		}
		if !ok {
			return retry.RetryableError(errors.New("lock held by another owner"))
		}
		acquired = true
		return nil
	})
	if err != nil || !acquired {
		return nil, crierrors.LockUnavailable(key, err)
	}
	return &lease{client: l.client, key: key, token: token}, nil
}

// Close releases the underlying Redis client.
func (l *Locker) Close() error {
	return l.client.Close()
}
