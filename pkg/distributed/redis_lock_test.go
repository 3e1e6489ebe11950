package distributed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisLock_AcquireAndRelease(t *testing.T) {
	_, client := newMiniRedisClient(t)
	manager := NewRedisLockManager(client)
	ctx := context.Background()

	lock, err := manager.AcquireLock(ctx, "test:lock", 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, lock)

	// 보유 중에는 다시 획득 불가
	lock2, err := manager.AcquireLock(ctx, "test:lock", 5*time.Second)
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.Nil(t, lock2)

	require.NoError(t, lock.Release(ctx))

	// 해제 후 다시 획득 가능
	lock3, err := manager.AcquireLock(ctx, "test:lock", 5*time.Second)
	require.NoError(t, err)
	assert.NoError(t, lock3.Release(ctx))
}

func TestRedisLock_AutoExpire(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	manager := NewRedisLockManager(client)
	ctx := context.Background()

	_, err := manager.AcquireLock(ctx, "test:expire", time.Second)
	require.NoError(t, err)

	mr.FastForward(1500 * time.Millisecond)

	lock2, err := manager.AcquireLock(ctx, "test:expire", 5*time.Second)
	require.NoError(t, err)
	assert.NotNil(t, lock2)
}

func TestRedisLock_SafeRelease(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	manager := NewRedisLockManager(client)
	ctx := context.Background()

	lock1, err := manager.AcquireLock(ctx, "test:safe", time.Second)
	require.NoError(t, err)

	mr.FastForward(1100 * time.Millisecond)

	lock2, err := manager.AcquireLock(ctx, "test:safe", 5*time.Second)
	require.NoError(t, err)

	// 만료된 락으로는 다른 인스턴스의 락을 해제할 수 없다
	err = lock1.Release(ctx)
	assert.ErrorIs(t, err, ErrLockNotHeld)
	assert.True(t, mr.Exists("test:safe"))

	assert.NoError(t, lock2.Release(ctx))
	assert.False(t, mr.Exists("test:safe"))
}

func TestRedisLock_ConcurrentAcquire(t *testing.T) {
	_, client := newMiniRedisClient(t)
	manager := NewRedisLockManager(client)

	const numGoroutines = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := manager.AcquireLock(context.Background(), "test:concurrent", 5*time.Second); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
}
