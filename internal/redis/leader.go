package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// renewScript extends the lock only while this instance still owns it.
var renewScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// LeaderLock is a single-holder lease in Redis. Several scheduler replicas
// can run; only the holder fires sweeps.
type LeaderLock struct {
	client     redis.UniversalClient
	key        string
	instanceID string
	ttl        time.Duration
}

// NewLeaderLock returns a lock on key held as instanceID for ttl per renewal.
func NewLeaderLock(client redis.UniversalClient, key, instanceID string, ttl time.Duration) *LeaderLock {
	return &LeaderLock{client: client, key: key, instanceID: instanceID, ttl: ttl}
}

// InstanceID identifies this holder.
func (l *LeaderLock) InstanceID() string { return l.instanceID }

// AcquireOrRenew takes the lock with SETNX, or extends it when this
// instance already holds it. It reports whether this instance is leader.
func (l *LeaderLock) AcquireOrRenew(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("leader setnx %s: %w", l.key, err)
	}
	if ok {
		return true, nil
	}

	result, err := renewScript.Run(ctx, l.client, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("leader renew %s: %w", l.key, err)
	}
	return result == 1, nil
}

// Release drops the lock if this instance holds it, so a replica can take
// over without waiting for the TTL.
func (l *LeaderLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.instanceID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("leader release %s: %w", l.key, err)
	}
	return nil
}
