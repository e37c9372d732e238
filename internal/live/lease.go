package live

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease decides which instance broadcasts a race's leaderboard. Every
// instance applies every event, so without it each one would publish the
// same standings.
type Lease interface {
	Hold(ctx context.Context, raceID string) (bool, error)
}

// acquireOrRenew sets the key to the caller's id when free and extends it
// when the caller already holds it.
var acquireOrRenew = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
if current == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

type RedisLease struct {
	redis    *redis.Client
	instance string
	ttl      time.Duration
}

func NewRedisLease(client *redis.Client, instance string, ttl time.Duration) *RedisLease {
	return &RedisLease{redis: client, instance: instance, ttl: ttl}
}

func leaseKey(raceID string) string {
	return "race:" + raceID + ":broadcaster"
}

func (l *RedisLease) Hold(ctx context.Context, raceID string) (bool, error) {
	held, err := acquireOrRenew.Run(ctx, l.redis, []string{leaseKey(raceID)}, l.instance, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return held == 1, nil
}
