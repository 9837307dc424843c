package redisclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSlotLocker_Serializes(t *testing.T) {
	l := NewLocalSlotLocker(time.Second)
	keys := SlotKeys(uuid.New(), uuid.New(), time.Now(), 30*time.Minute, 30*time.Minute)

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithSlotLock(context.Background(), keys, func(ctx context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLocalSlotLocker_ContextCancelledWhileWaiting(t *testing.T) {
	l := NewLocalSlotLocker(0)
	release := make(chan struct{})
	held := make(chan struct{})

	go func() {
		_ = l.WithSlotLock(context.Background(), []string{"slot"}, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.WithSlotLock(ctx, []string{"slot"}, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrLockNotAcquired)

	close(release)
}

func TestSlotKeys(t *testing.T) {
	tenant, pro := uuid.New(), uuid.New()
	at := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	grid := 30 * time.Minute

	assert.Equal(t,
		SlotKeys(tenant, pro, at, grid, grid),
		SlotKeys(tenant, pro, at.In(time.FixedZone("BRT", -3*3600)), grid, grid))

	long := SlotKeys(tenant, pro, at, 90*time.Minute, grid)
	assert.Len(t, long, 3)
	assert.Equal(t, SlotKeys(tenant, pro, at.Add(time.Hour), grid, grid), long[2:])

	offGrid := SlotKeys(tenant, pro, at.Add(15*time.Minute), grid, grid)
	assert.Len(t, offGrid, 2, "a range off the grid touches both cells")

	assert.NotEqual(t, SlotKeys(tenant, pro, at, grid, grid), SlotKeys(tenant, pro, at.Add(grid), grid, grid),
		"touching ranges share no cell")
}

func TestLocalSlotLocker_OverlappingRangesSerialize(t *testing.T) {
	l := NewLocalSlotLocker(time.Second)
	tenant, pro := uuid.New(), uuid.New()
	at := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	grid := 30 * time.Minute

	ranges := [][]string{
		SlotKeys(tenant, pro, at, time.Hour, grid),
		SlotKeys(tenant, pro, at.Add(30*time.Minute), grid, grid),
		SlotKeys(tenant, pro, at.Add(-30*time.Minute), 90*time.Minute, grid),
	}

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(keys []string) {
			defer wg.Done()
			err := l.WithSlotLock(context.Background(), keys, func(ctx context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}(ranges[i%len(ranges)])
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLocalSlotLocker_CancelledWaiterReleasesHeldCells(t *testing.T) {
	l := NewLocalSlotLocker(0)
	release := make(chan struct{})
	held := make(chan struct{})

	go func() {
		_ = l.WithSlotLock(context.Background(), []string{"b"}, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.WithSlotLock(ctx, []string{"a", "b"}, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrLockNotAcquired)

	ok := make(chan error, 1)
	go func() {
		ok <- l.WithSlotLock(context.Background(), []string{"a"}, func(ctx context.Context) error { return nil })
	}()
	select {
	case err := <-ok:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("cell a stayed locked after the waiter gave up")
	}

	close(release)
}
