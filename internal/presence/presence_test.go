package presence

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedis(client), mr
}

func setupTestBadger(t *testing.T) *Badger {
	t.Helper()
	b, err := OpenBadger()
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func stores(t *testing.T) map[string]Store {
	r, _ := setupTestRedis(t)
	return map[string]Store{
		"redis":  r,
		"badger": setupTestBadger(t),
	}
}

func TestSetNX(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := s.SetNX(ctx, "uid:p:1", "first", time.Hour)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = s.SetNX(ctx, "uid:p:1", "second", time.Hour)
			require.NoError(t, err)
			require.False(t, ok)

			v, err := s.Get(ctx, "uid:p:1")
			require.NoError(t, err)
			require.Equal(t, "first", v)
		})
	}
}

func TestSetNXConcurrent(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var (
				wg  sync.WaitGroup
				mu  sync.Mutex
				won int
			)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := s.SetNX(ctx, "race", "v", time.Hour)
					if err == nil && ok {
						mu.Lock()
						won++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			require.Equal(t, 1, won)
		})
	}
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestKeys(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "hb:a:1", "1", time.Minute))
			require.NoError(t, s.Set(ctx, "hb:a:2", "1", time.Minute))
			require.NoError(t, s.Set(ctx, "hb:b:1", "1", time.Minute))
			keys, err := s.Keys(ctx, "hb:a:")
			require.NoError(t, err)
			sort.Strings(keys)
			require.Equal(t, []string{"hb:a:1", "hb:a:2"}, keys)
		})
	}
}

func TestRedisExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestRedis(t)
	require.NoError(t, s.Set(ctx, "hb:a:1", "1", time.Minute))
	mr.FastForward(61 * time.Second)
	keys, err := s.Keys(ctx, "hb:a:")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestEscapeGlob(t *testing.T) {
	require.Equal(t, `hb:a\*b:`, escapeGlob("hb:a*b:"))
}
