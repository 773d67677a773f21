//go:build integration

package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisUserLocker_SerializesAcrossLockers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client := setupRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// two lockers sharing one Redis behave like two API instances
	lockers := []UserLocker{
		NewRedisUserLocker(client, "test:lock", 5*time.Second, logger),
		NewRedisUserLocker(client, "test:lock", 5*time.Second, logger),
	}

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(l UserLocker) {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "user-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}(lockers[i%2])
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, client.Exists(context.Background(), "test:lock:user:user-1").Val())
}

func TestRedisUserLocker_TimesOutWhileHeld(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client := setupRedis(t)
	locker := NewRedisUserLocker(client, "test:lock", 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))

	unlock, err := locker.Lock(context.Background(), "user-2")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "user-2")
	assert.ErrorIs(t, err, ErrLockTimeout)
}
