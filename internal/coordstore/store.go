// Package coordstore is the Coordination Store adapter: a Redis-backed
// key-value store exposing the single-key atomic primitives the Allocator
// needs to serialize reservations and enforce caps without ever holding an
// in-process lock across a network call (spec §4.3, §5).
package coordstore

import (
    "context"
    "fmt"
    "time"

    "github.com/go-redis/redis/v8"

    "github.com/hamzaKhattat/callerid-pool/pkg/errors"
)

// Store wraps a go-redis client with the primitives spec §4.3 requires.
type Store struct {
    client *redis.Client
    prefix string

    incrWithTTL *redis.Script
}

// Config configures the underlying Redis connection.
type Config struct {
    Addr         string
    Password     string
    DB           int
    PoolSize     int
    MinIdleConns int
    MaxRetries   int
    DialTimeout  time.Duration
    ReadTimeout  time.Duration
    WriteTimeout time.Duration
    KeyPrefix    string
}

// incrWithTTLScript atomically increments a counter and sets its TTL only
// the first time the key is created, so a racing increment never resets an
// in-flight bucket's expiry (spec §4.3: "IncrementWithTTL(key, ttl_if_new)").
const incrWithTTLScript = `
local v = redis.call("INCR", KEYS[1])
if v == 1 then
    redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return v
`

// New dials Redis and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
    client := redis.NewClient(&redis.Options{
        Addr:         cfg.Addr,
        Password:     cfg.Password,
        DB:           cfg.DB,
        PoolSize:     cfg.PoolSize,
        MinIdleConns: cfg.MinIdleConns,
        MaxRetries:   cfg.MaxRetries,
        DialTimeout:  cfg.DialTimeout,
        ReadTimeout:  cfg.ReadTimeout,
        WriteTimeout: cfg.WriteTimeout,
    })

    pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := client.Ping(pingCtx).Err(); err != nil {
        return nil, errors.Wrap(err, errors.ErrRedis, "failed to connect to coordination store")
    }

    return &Store{
        client:      client,
        prefix:      cfg.KeyPrefix,
        incrWithTTL: redis.NewScript(incrWithTTLScript),
    }, nil
}

// NewFromClient wraps an already-constructed redis.Client, used by tests
// that point at a miniredis instance.
func NewFromClient(client *redis.Client, keyPrefix string) *Store {
    return &Store{
        client:      client,
        prefix:      keyPrefix,
        incrWithTTL: redis.NewScript(incrWithTTLScript),
    }
}

func (s *Store) key(k string) string {
    if s.prefix == "" {
        return k
    }
    return fmt.Sprintf("%s:%s", s.prefix, k)
}

// SetIfAbsentResult distinguishes "created" from "already exists" so the
// Allocator can tell a won reservation from a lost one without inspecting
// error strings.
type SetIfAbsentResult int

const (
    Created SetIfAbsentResult = iota
    AlreadyExists
)

// SetIfAbsent is the Allocator's only linearization point (spec §5): it
// succeeds only if no prior key exists, atomically, regardless of how many
// callers race on the same key.
func (s *Store) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (SetIfAbsentResult, error) {
    ok, err := s.client.SetNX(ctx, s.key(key), value, ttl).Result()
    if err != nil {
        return 0, errors.Wrap(err, errors.ErrUnavailable, "coordination store set-if-absent failed")
    }
    if !ok {
        return AlreadyExists, nil
    }
    return Created, nil
}

// Get returns the stored payload, or (nil, false) if absent. A transport
// error is returned distinctly so callers can map it to Unavailable rather
// than mistaking it for "absent".
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
    val, err := s.client.Get(ctx, s.key(key)).Bytes()
    if err == redis.Nil {
        return nil, false, nil
    }
    if err != nil {
        return nil, false, errors.Wrap(err, errors.ErrUnavailable, "coordination store get failed")
    }
    return val, true, nil
}

// DeleteResult distinguishes an actual deletion from a no-op.
type DeleteResult int

const (
    Deleted DeleteResult = iota
    Absent
)

// Delete removes a key. Idempotent: deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) (DeleteResult, error) {
    n, err := s.client.Del(ctx, s.key(key)).Result()
    if err != nil {
        return 0, errors.Wrap(err, errors.ErrUnavailable, "coordination store delete failed")
    }
    if n == 0 {
        return Absent, nil
    }
    return Deleted, nil
}

// IncrementWithTTL atomically increments key and, only the first time the
// key is created by this call, sets its TTL to ttlIfNew (spec §4.3).
func (s *Store) IncrementWithTTL(ctx context.Context, key string, ttlIfNew time.Duration) (int64, error) {
    res, err := s.incrWithTTL.Run(ctx, s.client, []string{s.key(key)}, int64(ttlIfNew.Seconds())).Result()
    if err != nil {
        return 0, errors.Wrap(err, errors.ErrUnavailable, "coordination store increment failed")
    }
    v, ok := res.(int64)
    if !ok {
        return 0, errors.New(errors.ErrUnavailable, "coordination store increment returned unexpected type")
    }
    return v, nil
}

// Decrement is the best-effort compensation used after a cap violation
// (spec §4.1 Phase 3c). Its failure is never fatal: the bucket's TTL heals
// any drift it leaves behind.
func (s *Store) Decrement(ctx context.Context, key string) error {
    if err := s.client.Decr(ctx, s.key(key)).Err(); err != nil {
        return errors.Wrap(err, errors.ErrUnavailable, "coordination store decrement failed")
    }
    return nil
}

// Ping is used by the health-check readiness probe.
func (s *Store) Ping(ctx context.Context) error {
    if err := s.client.Ping(ctx).Err(); err != nil {
        return errors.Wrap(err, errors.ErrRedis, "coordination store ping failed")
    }
    return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
    return s.client.Close()
}
