package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes whole turns for one session key. The returned unlock
// func is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// MemoryLocker is a per-key semaphore for a single process. A key's slot
// is dropped once no holder or waiter references it.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]*memorySlot
}

type memorySlot struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*MemoryLocker)(nil)

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]*memorySlot)}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	slot := l.acquire(key)

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, slot)
		return nil, fmt.Errorf("waiting for session %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.release(key, slot)
		})
	}, nil
}

func (l *MemoryLocker) acquire(key string) *memorySlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &memorySlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *MemoryLocker) release(key string, slot *memorySlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

const (
	redisLockPrefix    = "npc-lock:"
	defaultLockTTL     = time.Minute
	defaultLockPolling = 50 * time.Millisecond
	lockTTLMargin      = 10 * time.Second
)

// LockTTL is the Redis lock lifetime for turns whose model calls may each
// take up to turnTimeout, retried up to retries times. The margin covers
// store reads and writes around the calls.
func LockTTL(turnTimeout time.Duration, retries int) time.Duration {
	return time.Duration(1+max(retries, 0))*turnTimeout + lockTTLMargin
}

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lock only if the caller still owns it.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker holds a SET NX lock per session so turns are serialized
// across processes. While held, the lock is refreshed every third of its
// ttl, so the ttl only bounds how long a crashed holder blocks others.
type RedisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	polling time.Duration
	logger  *slog.Logger
}

var _ Locker = (*RedisLocker)(nil)

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{
		client:  client,
		ttl:     ttl,
		polling: defaultLockPolling,
		logger:  logger,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	rkey := redisLockPrefix + key
	token := uuid.NewString()

	for {
		err := l.client.SetArgs(ctx, rkey, token, redis.SetArgs{Mode: "NX", TTL: l.ttl}).Err()
		if err == nil {
			break
		}
		if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("acquire lock for %s: %w", key, err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for session %s: %w", key, ctx.Err())
		case <-time.After(l.polling):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(context.WithoutCancel(ctx), key, rkey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Release even if the turn's context is already done.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{rkey}, token).Err(); err != nil {
				l.logger.Warn("Failed to release session lock", "key", key, "error", err)
			}
		})
	}, nil
}

func (l *RedisLocker) keepAlive(ctx context.Context, key, rkey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(max(l.ttl/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			owned, err := refreshScript.Run(ctx, l.client, []string{rkey}, token, l.ttl.Milliseconds()).Int()
			switch {
			case err != nil:
				l.logger.Warn("Failed to refresh session lock", "key", key, "error", err)
			case owned == 0:
				l.logger.Error("Session lock lost before release", "key", key)
				return
			}
		}
	}
}
