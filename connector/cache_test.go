package connector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetMissThenSet(t *testing.T) {
	c := newCache(time.Minute)
	_, ok := c.get("svc")
	assert.False(t, ok)

	recs := []ServiceRecord{{ServiceID: "a"}, {ServiceID: "b"}}
	c.set("svc", recs)

	got, ok := c.get("svc")
	require.True(t, ok)
	assert.Len(t, got, 2)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := newCache(10 * time.Millisecond)
	c.set("svc", []ServiceRecord{{ServiceID: "a"}})

	time.Sleep(30 * time.Millisecond)
	_, ok := c.get("svc")
	assert.False(t, ok, "entry must expire once its TTL has elapsed")
}

func TestCache_NextRoundRobinsIndependentOfServerCursor(t *testing.T) {
	c := newCache(time.Minute)
	c.set("svc", []ServiceRecord{{ServiceID: "a"}, {ServiceID: "b"}, {ServiceID: "c"}})

	seen := map[string]int{}
	for i := 0; i < 6; i++ {
		rec, ok := c.next("svc")
		require.True(t, ok)
		seen[rec.ServiceID]++
	}
	assert.Equal(t, 2, seen["a"])
	assert.Equal(t, 2, seen["b"])
	assert.Equal(t, 2, seen["c"])
}

func TestCache_ClearRemovesEverything(t *testing.T) {
	c := newCache(time.Minute)
	c.set("svc", []ServiceRecord{{ServiceID: "a"}})
	assert.Equal(t, 1, c.Info())
	c.Clear()
	assert.Equal(t, 0, c.Info())
}
