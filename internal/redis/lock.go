package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("slot lock not acquired")
)

// Locker serializes hold creation per professional time range. Callers lock
// every grid cell their range touches, so two overlapping ranges always share
// at least one cell.
type Locker interface {
	WithSlotLock(ctx context.Context, slots []string, fn func(ctx context.Context) error) error
}

// SlotKeys names the lock cells that [startsAt, startsAt+d) touches on a
// grid of step, in ascending order. The hash tag keeps one professional's
// cells on the same Redis Cluster slot.
func SlotKeys(tenantID, professionalID uuid.UUID, startsAt time.Time, d, step time.Duration) []string {
	stepSec := int64(step / time.Second)
	if stepSec <= 0 {
		stepSec = 1800
	}
	first := startsAt.Unix() / stepSec
	last := (startsAt.Add(d).Unix() + stepSec - 1) / stepSec
	if last <= first {
		last = first + 1
	}

	keys := make([]string, 0, last-first)
	for cell := first; cell < last; cell++ {
		keys = append(keys, fmt.Sprintf("{%s:%s}:%d", tenantID, professionalID, cell*stepSec))
	}
	return keys
}

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSlotLocker creates a locker that takes all cells in one script,
// all or nothing.
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
	}
}

var lockScript = redis.NewScript(`
for _, key in ipairs(KEYS) do
  if redis.call("EXISTS", key) == 1 then
    return 0
  end
end
for _, key in ipairs(KEYS) do
  redis.call("SET", key, ARGV[1], "PX", ARGV[2])
end
return 1
`)

var unlockScript = redis.NewScript(`
local released = 0
for _, key in ipairs(KEYS) do
  if redis.call("GET", key) == ARGV[1] then
    released = released + redis.call("DEL", key)
  end
end
return released
`)

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, slots []string, fn func(ctx context.Context) error) error {
	keys := make([]string, len(slots))
	for i, slot := range slots {
		keys[i] = "lock:slot:" + slot
	}
	token := uuid.NewString()

	ok, err := lockScript.Run(ctx, l.client, keys, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if ok != 1 {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), keys, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisSlotLocker) release(ctx context.Context, keys []string, token string) error {
	_, err := unlockScript.Run(ctx, l.client, keys, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

// localSlotLocker serializes within one process. Waiters queue instead of
// failing fast, bounded by their context.
type localSlotLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
	ttl   time.Duration
}

// localSlot is dropped from the map once nobody holds or waits for it.
type localSlot struct {
	sem  chan struct{}
	refs int
}

// NewLocalSlotLocker is for single-instance runs and tests.
func NewLocalSlotLocker(ttl time.Duration) Locker {
	return &localSlotLocker{
		slots: make(map[string]*localSlot),
		ttl:   ttl,
	}
}

func (l *localSlotLocker) acquireRef(slot string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[slot]
	if !ok {
		s = &localSlot{sem: make(chan struct{}, 1)}
		l.slots[slot] = s
	}
	s.refs++
	return s
}

func (l *localSlotLocker) releaseRef(slot string, s *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, slot)
	}
}

// WithSlotLock takes the cells in sorted order, so callers with overlapping
// sets cannot deadlock.
func (l *localSlotLocker) WithSlotLock(ctx context.Context, slots []string, fn func(ctx context.Context) error) error {
	sorted := append([]string(nil), slots...)
	sort.Strings(sorted)

	entries := make([]*localSlot, len(sorted))
	for i, slot := range sorted {
		entries[i] = l.acquireRef(slot)
	}
	held := 0
	defer func() {
		for i := held - 1; i >= 0; i-- {
			<-entries[i].sem
		}
		for i, slot := range sorted {
			l.releaseRef(slot, entries[i])
		}
	}()

	for _, e := range entries {
		select {
		case e.sem <- struct{}{}:
			held++
		case <-ctx.Done():
			return ErrLockNotAcquired
		}
	}

	if l.ttl <= 0 {
		return fn(ctx)
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}
