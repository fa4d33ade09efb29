package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"nftlend-backend/pkg/id"
)

var ErrLockTimeout = errors.New("cache: lock acquisition timed out")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a cluster-wide mutex over SET NX PX.
type RedisLock struct {
	rdb  *redis.Client
	key  string
	ttl  time.Duration
	poll time.Duration
}

func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{rdb: rdb, key: key, ttl: ttl, poll: 20 * time.Millisecond}
}

// Lock blocks until the lock is held or ctx is done.
func (l *RedisLock) Lock(ctx context.Context) (func(), error) {
	token := id.NewID32()
	for {
		ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// release with a fresh context; the caller's may already be cancelled
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrLockTimeout
			}
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}
