package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
)

// Redis is a keyed lock backed by a Redis lease (SET NX PX). The lease TTL
// caps how long a crashed holder can block a key; releases are token-checked
// so an expired holder cannot release a successor's lease.
type Redis struct {
	cli      *redis.Client
	wait     time.Duration
	leaseTTL time.Duration
	retry    time.Duration
}

const (
	defaultLeaseTTL = 10 * time.Second
	defaultRetry    = 50 * time.Millisecond
)

// releaseScript deletes the lease only when the stored token matches ours.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func NewRedis(cli *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		cli:      cli,
		wait:     DefaultWait,
		leaseTTL: defaultLeaseTTL,
		retry:    defaultRetry,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type RedisOption func(*Redis)

// WithRedisWait overrides the acquisition wait bound.
func WithRedisWait(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.wait = d
		}
	}
}

// WithLeaseTTL overrides how long a lease survives a crashed holder.
func WithLeaseTTL(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.leaseTTL = d
		}
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := "lock:" + key

	deadline := time.Now().Add(r.wait)
	for {
		ok, err := r.cli.SetNX(ctx, redisKey, token, r.leaseTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_, _ = releaseScript.Run(ctx, r.cli, []string{redisKey}, token).Result()
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, domain.ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}
}

// Ping verifies connectivity at startup so a misconfigured lock store fails
// fast instead of timing out on the first checkout.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.cli.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("lock store unreachable: %w", err)
	}
	return nil
}
