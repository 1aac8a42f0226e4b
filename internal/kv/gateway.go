// Package kv wraps the shared key-value store (Redis) behind the small set
// of operations the orchestration core needs: list push/pop, set-if-absent
// with expiry, get/set with expiry, delete, and one atomic Lua script.
//
// Two independent client handles are kept on purpose. Blocking pops share a
// physical connection pool that can stall for up to the poll timeout; using
// the same pool for ordinary commands would make unrelated tenants wait on
// whichever tenant's worker is currently parked in BLPOP.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrNil is returned by Get/BLPop when the key does not exist or the
// blocking pop timed out without a value arriving.
var ErrNil = errors.New("kv: nil")

// cleanupScript atomically deletes lock:{tenant} if queue:{tenant} is empty.
// KEYS[1] = queue key, KEYS[2] = lock key.
var cleanupScript = redis.NewScript(`
if redis.call("LLEN", KEYS[1]) == 0 then
	redis.call("DEL", KEYS[2])
	return 1
else
	return 0
end
`)

// Gateway is the gateway to the shared store. cmd is used for every
// non-blocking command; blocking is dedicated to BLPop.
type Gateway struct {
	cmd      *redis.Client
	blocking *redis.Client
}

// New dials two independent connections to the same Redis address.
func New(addr string) *Gateway {
	opts := &redis.Options{Addr: addr}
	return &Gateway{
		cmd:      redis.NewClient(opts),
		blocking: redis.NewClient(opts),
	}
}

// Close closes both underlying connections.
func (g *Gateway) Close() error {
	errCmd := g.cmd.Close()
	errBlk := g.blocking.Close()
	if errCmd != nil {
		return errCmd
	}
	return errBlk
}

// Ping checks connectivity on the command handle.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.cmd.Ping(ctx).Err()
}

// RPush appends payload to the tail of the list at key.
func (g *Gateway) RPush(ctx context.Context, key, payload string) error {
	return g.cmd.RPush(ctx, key, payload).Err()
}

// BLPop blocks up to timeout on the dedicated blocking handle, returning
// ErrNil if nothing arrived before the deadline.
func (g *Gateway) BLPop(ctx context.Context, key string, timeout time.Duration) (string, error) {
	res, err := g.blocking.BLPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNil
	}
	if err != nil {
		return "", fmt.Errorf("kv: blpop %s: %w", key, err)
	}
	// BLPop returns [key, value].
	if len(res) < 2 {
		return "", ErrNil
	}
	return res[1], nil
}

// SetNX sets key to value only if it is currently absent, with the given
// TTL. Returns whether the set happened.
func (g *Gateway) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := g.cmd.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("kv: setnx %s: %w", key, err)
	}
	return ok, nil
}

// SetEX sets key to value with the given TTL, overwriting any prior value.
func (g *Gateway) SetEX(ctx context.Context, key string, ttl time.Duration, value string) error {
	if err := g.cmd.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv: setex %s: %w", key, err)
	}
	return nil
}

// Get returns the value at key, or ErrNil if absent.
func (g *Gateway) Get(ctx context.Context, key string) (string, error) {
	v, err := g.cmd.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNil
	}
	if err != nil {
		return "", fmt.Errorf("kv: get %s: %w", key, err)
	}
	return v, nil
}

// Del removes key. Missing keys are not an error.
func (g *Gateway) Del(ctx context.Context, key string) error {
	return g.cmd.Del(ctx, key).Err()
}

// CleanupQueueAndLock runs the atomic cleanup script against the given
// queue/lock key pair, returning true if the lock was deleted (queue was
// empty) and false if a job was pushed concurrently (lock kept).
func (g *Gateway) CleanupQueueAndLock(ctx context.Context, queueKey, lockKey string) (bool, error) {
	res, err := cleanupScript.Run(ctx, g.cmd, []string{queueKey, lockKey}).Int64()
	if err != nil {
		return false, fmt.Errorf("kv: cleanup script %s/%s: %w", queueKey, lockKey, err)
	}
	return res == 1, nil
}

// LogConnection is a small convenience used at startup to report which
// Redis address both handles are bound to.
func (g *Gateway) LogConnection(addr string) {
	log.Info().Str("redis_addr", addr).Msg("kv gateway connected")
}
