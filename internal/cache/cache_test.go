package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache[string, int]()
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 0)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	v, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestNilAndNoopCaches(t *testing.T) {
	var nilCache *TTLCache[string, int]
	nilCache.Set("x", 1, time.Second)
	_, ok := nilCache.Get("x")
	assert.False(t, ok)

	var noop Cache[string, int] = NoopCache[string, int]{}
	noop.Set("x", 1, time.Second)
	_, ok = noop.Get("x")
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "summary:1:SPK-001", []byte(`{"overall":50}`), time.Minute))
	value, ok, err := store.Get(ctx, "summary:1:SPK-001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"overall":50}`, string(value))

	require.NoError(t, store.Delete(ctx, "summary:1:SPK-001", "missing"))
	_, ok, err = store.Get(ctx, "summary:1:SPK-001")
	require.NoError(t, err)
	assert.False(t, ok)
}
