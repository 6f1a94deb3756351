package services

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes actions on one key across API instances. Acquire
// reports false when another holder owns the key.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// NoopLocker always grants the lock. Row locks in Postgres still
// serialize writers when Redis is not configured.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}

// RedisLocker takes a short SET NX lock per key. The lock expires after
// TTL so a crashed holder cannot wedge a transaction.
type RedisLocker struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{Client: client, TTL: ttl, Prefix: "shopfloor:lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	full := l.Prefix + key
	ok, err := l.Client.SetNX(ctx, full, token, l.TTL).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, "acquire lock")
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// Background context: the request context may already be done.
		_ = releaseScript.Run(context.Background(), l.Client, []string{full}, token).Err()
	}
	return release, true, nil
}

func transactionLockKey(transNum int64) string {
	return fmt.Sprintf("tx:%d", transNum)
}

func poolLockKey(pool string) string {
	return "pool:" + pool
}
