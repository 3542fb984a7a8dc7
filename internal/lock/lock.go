// Package lock provides the per-document advisory lock required while
// indexing: concurrent index attempts for the same document id are
// serialized, with a redis-backed implementation for multi-process
// deployments and an in-process fallback for single-node ones.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"statutelex/internal/config"
)

// DocumentLocker serializes indexing attempts for a given document id.
// TryLock reports, without waiting, whether the caller acquired the lock;
// if not, another caller holds it and the caller may try again later.
type DocumentLocker interface {
	TryLock(ctx context.Context, documentID string) (Handle, bool, error)
}

// Handle releases a previously acquired lock.
type Handle interface {
	Unlock(ctx context.Context) error
}

// NewLocker builds a DocumentLocker from configuration: a redis client
// when RedisConfig.Enabled, otherwise an in-process mutex map.
func NewLocker(cfg config.RedisConfig) (DocumentLocker, error) {
	if !cfg.Enabled {
		return newMemoryLocker(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect redis lock backend: %w", err)
	}
	return &redisLocker{client: client, ttl: 10 * time.Minute}, nil
}

const keyPrefix = "statutelex:indexlock:"

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

type redisHandle struct {
	client *redis.Client
	key    string
	token  string
}

func (l *redisLocker) TryLock(ctx context.Context, documentID string) (Handle, bool, error) {
	key := keyPrefix + documentID
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock for %s: %w", documentID, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisHandle{client: l.client, key: key, token: token}, true, nil
}

// unlockScript releases the lock only if it is still held by the caller's
// token, so a lock that expired and was re-acquired by someone else is
// never released out from under them.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

func (h *redisHandle) Unlock(ctx context.Context) error {
	return h.client.Eval(ctx, unlockScript, []string{h.key}, h.token).Err()
}

// memoryLocker is the single-process fallback used when no redis backend
// is configured (local development, tests).
type memoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{held: make(map[string]struct{})}
}

type memoryHandle struct {
	l  *memoryLocker
	id string
}

func (l *memoryLocker) TryLock(_ context.Context, documentID string) (Handle, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[documentID]; busy {
		return nil, false, nil
	}
	l.held[documentID] = struct{}{}
	return &memoryHandle{l: l, id: documentID}, true, nil
}

func (h *memoryHandle) Unlock(_ context.Context) error {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	delete(h.l.held, h.id)
	return nil
}
