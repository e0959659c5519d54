package service

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const cycleLockKey = "bchhub:reconcile:cycle"

// CycleLock lets one process out of many run a reconciliation cycle.
// A holder releases it when its cycle ends; the ttl only bounds how long a
// crashed holder keeps others out.
type CycleLock interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

type noopCycleLock struct{}

func (noopCycleLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return true, nil
}

func (noopCycleLock) Release(ctx context.Context) error { return nil }

func NoopCycleLock() CycleLock {
	return noopCycleLock{}
}

// deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCycleLock struct {
	client *redis.Client
	owner  string
}

func NewRedisCycleLock(client *redis.Client) *RedisCycleLock {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "bchhub"
	}
	return &RedisCycleLock{client: client, owner: host + ":" + uuid.NewString()}
}

func (l *RedisCycleLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, cycleLockKey, l.owner, ttl).Result()
}

// Release is a no-op when the lock expired and somebody else took it.
func (l *RedisCycleLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{cycleLockKey}, l.owner).Err()
}

// InitCycleLock connects to redis when a url is configured.
func InitCycleLock(c *Config) (CycleLock, error) {
	if c.RedisUrl == "" {
		return NoopCycleLock(), nil
	}
	opts, err := redis.ParseURL(c.RedisUrl)
	if err != nil {
		return nil, err
	}
	return NewRedisCycleLock(redis.NewClient(opts)), nil
}
