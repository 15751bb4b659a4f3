package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CaseLocker leases short-lived per-case locks so that only one actor mutates
// a case at a time.
type CaseLocker interface {
	// Acquire returns a token when the lock was obtained, or ok=false when another holder has it.
	Acquire(ctx context.Context, caseID string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, caseID, token string) error
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements CaseLocker with SET NX PX so locks hold across replicas.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker builds a locker on top of an established client.
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "screening:case-lock:"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

func (l *RedisLocker) Acquire(ctx context.Context, caseID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+caseID, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire case lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLocker) Release(ctx context.Context, caseID, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + caseID}, token).Err(); err != nil {
		return fmt.Errorf("release case lock: %w", err)
	}
	return nil
}

// LocalLocker is the single-process CaseLocker used when Redis is not configured.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localLease
	clock func() time.Time
}

type localLease struct {
	token   string
	expires time.Time
}

// NewLocalLocker builds an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held:  make(map[string]localLease),
		clock: time.Now,
	}
}

func (l *LocalLocker) Acquire(_ context.Context, caseID string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if lease, ok := l.held[caseID]; ok && now.Before(lease.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[caseID] = localLease{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Release(_ context.Context, caseID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lease, ok := l.held[caseID]; ok && lease.token == token {
		delete(l.held, caseID)
	}
	return nil
}
