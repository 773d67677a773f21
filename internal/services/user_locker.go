package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a per-user lock cannot be acquired in time
var ErrLockTimeout = errors.New("timed out waiting for user lock")

// LocalUserLocker serializes callers per user id within one process
type LocalUserLocker struct {
	mu    sync.Mutex
	locks map[string]*userSlot
}

type userSlot struct {
	sem  chan struct{}
	refs int
}

func NewLocalUserLocker() *LocalUserLocker {
	return &LocalUserLocker{locks: make(map[string]*userSlot)}
}

func (l *LocalUserLocker) Lock(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.locks[userID]
	if !ok {
		slot = &userSlot{sem: make(chan struct{}, 1)}
		l.locks[userID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(userID, slot)
		return nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.sem
			l.release(userID, slot)
		})
	}, nil
}

func (l *LocalUserLocker) release(userID string, slot *userSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.locks, userID)
	}
}

// held reports how many user slots are currently tracked
func (l *LocalUserLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisUserLocker serializes callers per user id across instances with a
// SET NX lease. The lease expires after ttl if the holder dies.
type RedisUserLocker struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration
	logger     *slog.Logger
}

func NewRedisUserLocker(client redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisUserLocker {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "tappay:lock"
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisUserLocker{
		client:     client,
		prefix:     trimmed,
		ttl:        ttl,
		retryDelay: 25 * time.Millisecond,
		logger:     logger,
	}
}

// Lease is how long a hold survives without being released
func (l *RedisUserLocker) Lease() time.Duration {
	return l.ttl
}

func (l *RedisUserLocker) key(userID string) string {
	return fmt.Sprintf("%s:user:%s", l.prefix, userID)
}

func (l *RedisUserLocker) Lock(ctx context.Context, userID string) (func(), error) {
	key := l.key(userID)
	token := uuid.New().String()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
			}
			return nil, fmt.Errorf("acquire user lock: %w", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// release on a fresh context so a cancelled request still frees the lease
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseLockScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
				l.logger.Warn("failed to release user lock; lease will expire",
					slog.String("key", key),
					slog.Any("error", err),
				)
			}
		})
	}, nil
}
