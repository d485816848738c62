package livestore_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lockstep-labs/chand/internal/core/ports"
	inmemory "github.com/lockstep-labs/chand/internal/infrastructure/live-store/inmemory"
	redislivestore "github.com/lockstep-labs/chand/internal/infrastructure/live-store/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLiveStoreImplementations(t *testing.T) {
	stores := []struct {
		name  string
		store func(t *testing.T) ports.LiveStore
	}{
		{"inmemory", func(t *testing.T) ports.LiveStore { return inmemory.NewLiveStore() }},
		{"redis", func(t *testing.T) ports.LiveStore {
			redisOpts, err := redis.ParseURL("redis://localhost:6379/0")
			require.NoError(t, err)
			rdb := redis.NewClient(redisOpts)
			if err := rdb.Ping(t.Context()).Err(); err != nil {
				t.Skipf("redis not reachable: %s", err)
			}
			return redislivestore.NewLiveStore(rdb, 5)
		}},
	}

	for _, tt := range stores {
		t.Run(tt.name, func(t *testing.T) {
			store := tt.store(t)
			defer store.Close()
			runLiveStoreTests(t, store)
		})
	}
}

func runLiveStoreTests(t *testing.T, store ports.LiveStore) {
	t.Run("ExecutionLock", func(t *testing.T) {
		lock := store.ExecutionLock()

		release, err := lock.Lock(t.Context())
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
		defer cancel()
		_, err = lock.Lock(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		release()
		// Releasing twice must not free a lock acquired by someone else.
		release2, err := lock.Lock(t.Context())
		require.NoError(t, err)
		release()

		ctx, cancel = context.WithTimeout(t.Context(), 100*time.Millisecond)
		defer cancel()
		_, err = lock.Lock(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		release2()
	})

	t.Run("ExecutionLock mutual exclusion", func(t *testing.T) {
		lock := store.ExecutionLock()

		var (
			inside  atomic.Int32
			maxSeen atomic.Int32
			wg      sync.WaitGroup
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := lock.Lock(t.Context())
				if err != nil {
					return
				}
				defer release()

				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(5 * time.Millisecond)
				inside.Add(-1)
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), maxSeen.Load())
	})
}
