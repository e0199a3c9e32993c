package livestore_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokenmarket/marketd/internal/core/ports"
	inmemory "github.com/tokenmarket/marketd/internal/infrastructure/live-store/inmemory"
	redislivestore "github.com/tokenmarket/marketd/internal/infrastructure/live-store/redis"
)

func TestLiveStoreImplementations(t *testing.T) {
	stores := []struct {
		name  string
		store ports.LiveStore
	}{
		{"inmemory", inmemory.NewLiveStore()},
	}

	if redisUrl := os.Getenv("MARKETD_TEST_REDIS_URL"); redisUrl != "" {
		redisOpts, err := redis.ParseURL(redisUrl)
		require.NoError(t, err)
		rdb := redis.NewClient(redisOpts)
		stores = append(stores, struct {
			name  string
			store ports.LiveStore
		}{"redis", redislivestore.NewLiveStore(rdb, 5*time.Second, 5)})
	}

	for _, tt := range stores {
		t.Run(tt.name, func(t *testing.T) {
			runLiveStoreTests(t, tt.store)
			tt.store.Close()
		})
	}
}

func runLiveStoreTests(t *testing.T, store ports.LiveStore) {
	t.Run("LockStore", func(t *testing.T) {
		t.Run("exclusive", func(t *testing.T) {
			ctx := t.Context()
			key := "test-exclusive"

			release, err := store.Locks().Acquire(ctx, key)
			require.NoError(t, err)

			timeoutCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
			defer cancel()
			_, err = store.Locks().Acquire(timeoutCtx, key)
			require.ErrorIs(t, err, context.DeadlineExceeded)

			require.NoError(t, release(ctx))
			// Releasing twice is a no-op.
			require.NoError(t, release(ctx))

			release, err = store.Locks().Acquire(ctx, key)
			require.NoError(t, err)
			require.NoError(t, release(ctx))
		})

		t.Run("independent keys", func(t *testing.T) {
			ctx := t.Context()

			releaseA, err := store.Locks().Acquire(ctx, "test-a")
			require.NoError(t, err)
			releaseB, err := store.Locks().Acquire(ctx, "test-b")
			require.NoError(t, err)

			require.NoError(t, releaseA(ctx))
			require.NoError(t, releaseB(ctx))
		})

		t.Run("serializes concurrent holders", func(t *testing.T) {
			ctx := t.Context()
			key := "test-concurrent"

			count := 20
			holders := 0
			maxHolders := 0
			mu := &sync.Mutex{}
			wg := &sync.WaitGroup{}
			wg.Add(count)
			for range count {
				go func() {
					defer wg.Done()
					release, err := store.Locks().Acquire(ctx, key)
					if !assert.NoError(t, err) {
						return
					}

					mu.Lock()
					holders++
					maxHolders = max(maxHolders, holders)
					mu.Unlock()

					time.Sleep(time.Millisecond)

					mu.Lock()
					holders--
					mu.Unlock()

					assert.NoError(t, release(ctx))
				}()
			}
			wg.Wait()

			require.Equal(t, 1, maxHolders)
		})
	})
}
