package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStore(mr.Addr(), ttl, testLogger())
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

// stores runs each test body against both implementations.
func stores(t *testing.T) map[string]Store {
	redisStore, _ := newRedisStore(t, 0)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "kaelen_the_smith:abc", SessionKey("kaelen_the_smith", "abc"))
	assert.NotEqual(t, SessionKey("a", "s1"), SessionKey("b", "s1"))
}

func TestStore_GetUnknown(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			turns, err := store.Get(context.Background(), "nobody:none")
			require.NoError(t, err)
			assert.NotNil(t, turns)
			assert.Empty(t, turns)
		})
	}
}

func TestStore_AppendOrderAndCap(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := SessionKey("kaelen_the_smith", "s1")

			for i := 0; i < 12; i++ {
				require.NoError(t, store.Append(ctx, key,
					chat.PlayerTurn(fmt.Sprintf("p%d", i)),
					chat.CharacterTurn(fmt.Sprintf("c%d", i)),
				))
			}

			turns, err := store.Get(ctx, key)
			require.NoError(t, err)
			require.Len(t, turns, MaxTurns)
			// 24 turns appended, the first 4 evicted.
			assert.Equal(t, chat.PlayerTurn("p2"), turns[0])
			assert.Equal(t, chat.CharacterTurn("c11"), turns[MaxTurns-1])
		})
	}
}

func TestStore_ResetAndIsolation(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := SessionKey("kaelen_the_smith", "a")
			b := SessionKey("kaelen_the_smith", "b")

			require.NoError(t, store.Append(ctx, a, chat.PlayerTurn("hello")))
			require.NoError(t, store.Append(ctx, b, chat.PlayerTurn("other")))

			require.NoError(t, store.Reset(ctx, a))
			require.NoError(t, store.Reset(ctx, a), "reset is idempotent")

			got, err := store.Get(ctx, a)
			require.NoError(t, err)
			assert.Empty(t, got)

			got, err = store.Get(ctx, b)
			require.NoError(t, err)
			assert.Equal(t, []chat.Turn{chat.PlayerTurn("other")}, got)
		})
	}
}

func TestStore_ConcurrentAppends(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := SessionKey("kaelen_the_smith", "busy")

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, store.Append(ctx, key,
						chat.PlayerTurn(fmt.Sprint(i)), chat.CharacterTurn(fmt.Sprint(i))))
				}(i)
			}
			wg.Wait()

			turns, err := store.Get(ctx, key)
			require.NoError(t, err)
			require.Len(t, turns, 16)
			// Pairs appended in one call stay adjacent.
			for i := 0; i < len(turns); i += 2 {
				assert.Equal(t, chat.RolePlayer, turns[i].Role)
				assert.Equal(t, turns[i].Text, turns[i+1].Text)
			}
		})
	}
}

func TestStore_ConcurrentAppendsAcrossKeys(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			keys := []string{
				SessionKey("kaelen_the_smith", "a"),
				SessionKey("kaelen_the_smith", "b"),
				SessionKey("mira_the_innkeeper", "a"),
			}

			var wg sync.WaitGroup
			for _, key := range keys {
				for i := 0; i < 5; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						assert.NoError(t, store.Append(ctx, key,
							chat.PlayerTurn(key), chat.CharacterTurn(fmt.Sprintf("%s/%d", key, i))))
					}()
				}
			}
			wg.Wait()

			for _, key := range keys {
				turns, err := store.Get(ctx, key)
				require.NoError(t, err)
				require.Len(t, turns, 10, key)
				for _, turn := range turns {
					assert.True(t, strings.HasPrefix(turn.Text, key), "%s saw %q", key, turn.Text)
				}
			}
		})
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Append(ctx, "k", chat.PlayerTurn("original")))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	got[0].Text = "mutated"

	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Text)
}

func TestRedisStore_TTL(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "k", chat.PlayerTurn("hi")))

	assert.Equal(t, time.Minute, mr.TTL(redisKeyPrefix+"k"))
	mr.FastForward(2 * time.Minute)

	turns, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t, 0)
	mr.Close()

	ctx := context.Background()
	assert.Error(t, store.Ping(ctx))
	_, err := store.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, store.Append(ctx, "k", chat.PlayerTurn("x")))

	waitCtx, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, store.WaitForConnection(waitCtx))
}

func lockers(t *testing.T) map[string]Locker {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rl := NewRedisLocker(client, time.Minute, testLogger())
	rl.polling = 5 * time.Millisecond
	return map[string]Locker{
		"memory": NewMemoryLocker(),
		"redis":  rl,
	}
}

func TestLocker_Exclusive(t *testing.T) {
	for name, locker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			unlock, err := locker.Lock(ctx, "k")
			require.NoError(t, err)

			// A second holder waits until the context gives up.
			waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			_, err = locker.Lock(waitCtx, "k")
			assert.ErrorIs(t, err, context.DeadlineExceeded)

			// Other keys are independent.
			other, err := locker.Lock(ctx, "other")
			require.NoError(t, err)
			other()

			unlock()
			unlock() // idempotent

			again, err := locker.Lock(ctx, "k")
			require.NoError(t, err)
			again()
		})
	}
}

func TestLocker_SerializesCriticalSection(t *testing.T) {
	for name, locker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var (
				mu      sync.Mutex
				inside  int
				maxSeen int
				wg      sync.WaitGroup
			)
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := locker.Lock(ctx, "k")
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					inside++
					if inside > maxSeen {
						maxSeen = inside
					}
					mu.Unlock()
					time.Sleep(5 * time.Millisecond)
					mu.Lock()
					inside--
					mu.Unlock()
					unlock()
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, maxSeen)
		})
	}
}

func TestMemoryLocker_KeysIndependent(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, "a")
	require.NoError(t, err)

	// Holding "a" must not delay "b" at all.
	quick, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	unlockB, err := locker.Lock(quick, "b")
	require.NoError(t, err)

	// A waiter on "a" that gives up leaves no slot behind.
	waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer waitCancel()
	_, err = locker.Lock(waitCtx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, locker.size())

	unlockB()
	unlockA()
	unlockA()
	assert.Equal(t, 0, locker.size())
}

func TestMemoryLocker_SlotsReleased(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		unlock, err := locker.Lock(ctx, fmt.Sprintf("kaelen_the_smith:%d", i))
		require.NoError(t, err)
		unlock()
	}
	assert.Equal(t, 0, locker.size())
}

func TestLockTTL(t *testing.T) {
	assert.Equal(t, 70*time.Second, LockTTL(30*time.Second, 1))
	assert.Equal(t, 40*time.Second, LockTTL(30*time.Second, 0))
	assert.Equal(t, 40*time.Second, LockTTL(30*time.Second, -1))
	assert.Greater(t, LockTTL(30*time.Second, 1), 2*30*time.Second)
}

func TestRedisLocker_RefreshedWhileHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	ttl := 300 * time.Millisecond
	locker := NewRedisLocker(client, ttl, testLogger())
	locker.polling = 5 * time.Millisecond
	key := redisLockPrefix + "k"

	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	// Most of the ttl passes while the turn is still running.
	mr.FastForward(250 * time.Millisecond)
	require.Eventually(t, func() bool { return mr.TTL(key) > 200*time.Millisecond },
		2*time.Second, 10*time.Millisecond, "lock was not refreshed")

	// Past the original expiry the lock is still held.
	mr.FastForward(250 * time.Millisecond)
	assert.True(t, mr.Exists(key))

	waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.False(t, mr.Exists(key))
}

func TestRedisLocker_ReleaseOnlyOwnToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	locker := NewRedisLocker(client, time.Second, testLogger())

	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	// Simulate expiry and takeover by another holder.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(redisLockPrefix+"k", "someone-else"))

	unlock()
	got, err := mr.Get(redisLockPrefix + "k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
