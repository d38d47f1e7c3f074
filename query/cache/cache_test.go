package cache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/satishbabariya/exprsql/query/cache"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLRUCache_TTL(t *testing.T) {
	clock := newFakeClock()
	c := cache.NewLRUCache(0, time.Minute, cache.WithClock(clock.Now))

	c.Set("a", 1, 0)
	c.Set("b", 2, time.Hour)
	c.Set("c", 3, -1)

	clock.Advance(59 * time.Second)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	clock.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry expires exactly at its TTL")

	clock.Advance(24 * time.Hour)
	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok, "negative TTL never expires")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, 1, stats.Size)
	assert.InDelta(t, 50.0, stats.HitRate, 0.001)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := cache.NewLRUCache(2, 0)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	_, _ = c.Get("a")
	c.Set("c", 3, 0)

	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	assert.Equal(t, []string{"c", "a"}, c.Keys())
	assert.Equal(t, int64(1), c.Stats().Evictions)

	c.Set("a", 10, 0)
	v, _ := c.Get("a")
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, c.Stats().Size)
}

func TestLRUCache_Invalidate(t *testing.T) {
	c := cache.NewLRUCache(0, 0)
	c.Set("script:1", 1, 0)
	c.Set("script:2", 2, 0)
	c.Set("expr:1", 3, 0)

	assert.True(t, c.Invalidate("expr:1"))
	assert.False(t, c.Invalidate("expr:1"))
	assert.ElementsMatch(t, []string{"script:1", "script:2"}, c.InvalidatePattern("script:*"))
	assert.Empty(t, c.Keys())

	c.Set("x", 1, 0)
	c.Clear()
	assert.Equal(t, cache.Stats{}, c.Stats())
}

func TestLRUCache_Concurrent(t *testing.T) {
	c := cache.NewLRUCache(64, 0)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%100)
				c.Set(key, g, 0)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Stats().Size, 64)
}

func storeContract(t *testing.T, s cache.Store, clock *fakeClock) {
	t.Helper()

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put("k", []byte("value"), time.Minute))
	require.NoError(t, s.Put("forever", []byte("x"), 0))
	got, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value"), got)

	clock.Advance(time.Minute)
	_, ok, err = s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Get("forever")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete("forever"))
	require.NoError(t, s.Delete("forever"))
	_, ok, err = s.Get("forever")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put("a", []byte("1"), 0))
	require.NoError(t, s.Put("b", []byte("2"), 0))
	require.NoError(t, s.Clear())
	_, ok, err = s.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	clock := newFakeClock()
	storeContract(t, cache.NewMemoryStore(16, cache.WithClock(clock.Now)), clock)
}

func TestFileStore(t *testing.T) {
	clock := newFakeClock()
	fsys := afero.NewMemMapFs()
	s, err := cache.NewFileStore(fsys, "/var/cache/exprsql", cache.WithClock(clock.Now))
	require.NoError(t, err)
	defer s.Close()

	storeContract(t, s, clock)

	big := make([]byte, 1<<16)
	require.NoError(t, s.Put("big", big, 0))
	files, err := afero.ReadDir(fsys, "/var/cache/exprsql")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Less(t, files[0].Size(), int64(len(big)), "payload is compressed")

	got, ok, err := s.Get("big")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, big, got)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, _, err = s.Get("big")
	assert.ErrorIs(t, err, cache.ErrStoreClosed)
	assert.ErrorIs(t, s.Put("big", big, 0), cache.ErrStoreClosed)
}

func TestMsgpack(t *testing.T) {
	type row struct {
		ID   int
		Name string
	}
	codec := cache.Msgpack()
	data, err := codec.Marshal([]row{{1, "a"}, {2, "b"}})
	require.NoError(t, err)

	var out []row
	require.NoError(t, codec.Unmarshal(data, &out))
	assert.Equal(t, []row{{1, "a"}, {2, "b"}}, out)

	assert.Error(t, codec.Unmarshal(nil, &out))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, cache.ExplicitKey("users"), cache.ExplicitKey("users"))
	assert.NotEqual(t, cache.ExplicitKey("users"), cache.ExplicitKey("orders"))
	assert.Regexp(t, `^key:[0-9a-f]{32}$`, cache.ExplicitKey("users"))

	a := cache.ScriptKey("list", "SELECT ?", "sqlite", []any{1})
	assert.Equal(t, a, cache.ScriptKey("list", "SELECT ?", "sqlite", []any{1}))
	assert.NotEqual(t, a, cache.ScriptKey("list", "SELECT ?", "sqlite", []any{2}))
	assert.NotEqual(t, a, cache.ScriptKey("list", "SELECT ?", "mysql", []any{1}))
	assert.NotEqual(t, a, cache.ScriptKey("list", "SELECT ?", "sqlite", []any{"1"}))
	assert.NotEqual(t, a, cache.ScriptKey("one", "SELECT ?", "sqlite", []any{1}))

	e := cache.ExpressionKey("list", []uint64{42}, []any{30})
	assert.NotEqual(t, e, cache.ExpressionKey("one", []uint64{42}, []any{30}))
	assert.NotEqual(t, e, cache.ExpressionKey("list", []uint64{42}, []any{40}))
	assert.Regexp(t, `^expr:`, e)
}
