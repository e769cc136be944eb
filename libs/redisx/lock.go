package redisx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

// Locker is a per-key mutual exclusion primitive backed by Redis.
// Handlers are stateless and run concurrently across instances, so any
// read-modify-write on a shared row (e.g. a conversation's draft) must be
// wrapped in one of these critical sections.
type Locker struct {
	rdb     *redis.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
	prefix  string
}

type LockerConfig struct {
	TTL     time.Duration
	Retries int
	Backoff time.Duration
	Prefix  string
}

// Release only deletes the key if it still holds our token, so a lock that
// expired and was re-acquired elsewhere is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewLocker(rdb *redis.Client, cfg LockerConfig) *Locker {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 20
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 50 * time.Millisecond
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "lock"
	}
	return &Locker{
		rdb:     rdb,
		ttl:     cfg.TTL,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		prefix:  cfg.Prefix,
	}
}

// Acquire blocks (with bounded retries) until the key is locked or the
// context is cancelled. The returned release func is safe to call exactly
// once; calling it after TTL expiry is a no-op.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	token := newToken()
	full := l.prefix + ":" + key

	for attempt := 0; attempt <= l.retries; attempt++ {
		ok, err := l.rdb.SetNX(ctx, full, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			release := func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_, _ = releaseScript.Run(releaseCtx, l.rdb, []string{full}, token).Result()
			}
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.backoff):
		}
	}
	return nil, ErrLockNotAcquired
}

func newToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
