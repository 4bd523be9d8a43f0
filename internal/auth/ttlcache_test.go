package auth

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangthobach/data-extraction/internal/entity"
)

func newTestLocalCache(maxSize int, ttl time.Duration) (*localCache, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newLocalCache(maxSize, ttl, func() time.Time { return now })
	return c, &now
}

func cred(tenantID string) entity.Credential {
	return entity.Credential{TenantID: tenantID, TenantName: tenantID, DailyLimit: 100}
}

func TestLocalCachePutGet(t *testing.T) {
	c, _ := newTestLocalCache(10, time.Minute)

	c.Put("k1", cred("t1"))

	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "t1", got.TenantID)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLocalCacheExpiry(t *testing.T) {
	c, now := newTestLocalCache(10, time.Minute)

	c.Put("k1", cred("t1"))

	*now = now.Add(59 * time.Second)
	_, ok := c.Get("k1")
	require.True(t, ok)

	*now = now.Add(2 * time.Second)
	_, ok = c.Get("k1")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestLocalCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestLocalCache(3, time.Minute)

	c.Put("k1", cred("t1"))
	c.Put("k2", cred("t2"))
	c.Put("k3", cred("t3"))

	// Touch k1 so k2 becomes the eviction candidate.
	_, ok := c.Get("k1")
	require.True(t, ok)

	c.Put("k4", cred("t4"))

	_, ok = c.Get("k2")
	assert.False(t, ok)
	for _, k := range []string{"k1", "k3", "k4"} {
		_, ok = c.Get(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, 3, c.Len())
}

func TestLocalCachePutRefreshesExistingEntry(t *testing.T) {
	c, now := newTestLocalCache(10, time.Minute)

	c.Put("k1", cred("t1"))
	*now = now.Add(50 * time.Second)
	c.Put("k1", cred("t1-updated"))
	*now = now.Add(30 * time.Second)

	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "t1-updated", got.TenantID)
	assert.Equal(t, 1, c.Len())
}

func TestLocalCacheDelete(t *testing.T) {
	c, _ := newTestLocalCache(10, time.Minute)

	c.Put("k1", cred("t1"))
	c.Delete("k1")
	c.Delete("k1") // idempotent

	_, ok := c.Get("k1")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestLocalCacheBoundedUnderChurn(t *testing.T) {
	c, _ := newTestLocalCache(5, time.Minute)

	for i := 0; i < 50; i++ {
		c.Put(fmt.Sprintf("k%d", i), cred("t"))
	}
	assert.Equal(t, 5, c.Len())
}
