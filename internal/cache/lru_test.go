package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRUExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRU[string](4, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("other", "v")
	now = now.Add(2 * time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Zero(t, c.Len())
}

func TestLRUCounters(t *testing.T) {
	c := NewLRU[[]byte](1, time.Minute)
	_, _ = c.Get("x")
	c.Set("x", []byte("png"))
	_, _ = c.Get("x")

	assert.Equal(t, int64(1), c.Hits())
	assert.Equal(t, int64(1), c.Misses())
}

func TestJanitorStopsTwice(t *testing.T) {
	c := NewLRU[int](1, time.Nanosecond)
	c.Set("a", 1)
	j := StartJanitor(time.Millisecond, c)
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, time.Millisecond)
	j.Stop()
	j.Stop()
}
