package builds

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Locker grants short-lived exclusive admission for a key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error)
}

// Lock is a held admission lock.
type Lock interface {
	Unlock(ctx context.Context) error
}

// NewMemoryLocker returns a process-local Locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryLease)}
}

type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]memoryLease
}

type memoryLease struct {
	token   string
	expires time.Time
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	token, err := lockToken()
	if err != nil {
		return nil, false, err
	}
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if lease, ok := l.held[key]; ok && now.Before(lease.expires) {
		return nil, false, nil
	}
	l.held[key] = memoryLease{token: token, expires: now.Add(ttl)}
	return &memoryLock{locker: l, key: key, token: token}, true, nil
}

type memoryLock struct {
	locker *MemoryLocker
	key    string
	token  string
}

func (m *memoryLock) Unlock(context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()
	if lease, ok := m.locker.held[m.key]; ok && lease.token == m.token {
		delete(m.locker.held, m.key)
	}
	return nil
}

// RedisLocker shares admission across API replicas with SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLocker returns a Locker storing keys under prefix.
func NewRedisLocker(client redis.UniversalClient, prefix string) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		prefix = "docsplatform:build-lock"
	}
	return &RedisLocker{client: client, prefix: prefix}, nil
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	token, err := lockToken()
	if err != nil {
		return nil, false, err
	}
	redisKey := l.prefix + ":" + key
	acquired, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire build lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return &redisLock{client: l.client, key: redisKey, token: token}, true, nil
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Unlock deletes the key only while it still carries this lock's token. A
// lease that expired and was taken over by another caller is left alone.
func (r *redisLock) Unlock(ctx context.Context) error {
	current, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read build lock: %w", err)
	}
	if current != r.token {
		return nil
	}
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("release build lock: %w", err)
	}
	return nil
}

func lockToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
