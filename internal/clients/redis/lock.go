package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/apexlab/apex-backend/internal/platform/logger"
)

// Locker hands out coarse named locks so that exactly one instance runs the
// profile queue sweep at a time. A nil Locker is valid: single-instance
// deployments skip Redis and everything behaves as if the lock were free.
type Locker struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewLocker(log *logger.Logger) (*Locker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Locker{
		log: log.With("client", "RedisLocker"),
		rdb: rdb,
	}, nil
}

// Acquire takes the named lock for ttl. It returns a release func and true,
// or nil and false when another holder owns the lock.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool) {
	if l == nil || l.rdb == nil {
		return func() {}, true
	}

	key := "lock:" + name
	owner := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		l.log.Warn("Lock acquire failed, treating as held", "lock", name, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	release := func() {
		// Owner-checked delete so an expired-and-retaken lock is never
		// released by the old holder.
		const script = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.rdb.Eval(rctx, script, []string{key}, owner).Err(); err != nil {
			l.log.Warn("Lock release failed", "lock", name, "error", err)
		}
	}
	return release, true
}

func (l *Locker) Close() {
	if l == nil || l.rdb == nil {
		return
	}
	_ = l.rdb.Close()
}
