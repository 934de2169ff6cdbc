package redisx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("lock held by another owner")

// Lock is a single-instance SET NX PX lock. Release only deletes the key
// while it still carries this owner's token.
type Lock struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewLock(rdb *redis.Client, prefix string, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if prefix == "" {
		prefix = "lock"
	}
	return &Lock{rdb: rdb, prefix: prefix, ttl: ttl, retry: 25 * time.Millisecond}
}

// Acquire blocks until the key is free or ctx ends.
func (l *Lock) Acquire(ctx context.Context, key string) (func(), error) {
	token := newToken()
	full := l.prefix + ":" + key
	for {
		ok, err := l.rdb.SetNX(ctx, full, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(rctx, l.rdb, []string{full}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockHeld, ctx.Err())
		case <-time.After(l.retry):
		}
	}
}

func newToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
