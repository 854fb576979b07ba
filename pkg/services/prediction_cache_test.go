package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"demand-forecast-api/pkg/models"
)

func cachedResult(storeID string) models.PredictionResult {
	return models.PredictionResult{
		Request: models.PredictionRequest{StoreID: storeID, SKUID: "SKU0001"},
		Status:  "success",
	}
}

func TestCacheHitReturnsStoredResult(t *testing.T) {
	cache := NewPredictionCache(4)
	cache.Put("k1", cachedResult("STORE0001"))

	got, ok := cache.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, "STORE0001", got.Request.StoreID)

	_, ok = cache.Get("k2")
	assert.False(t, ok)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewPredictionCache(2)
	cache.Put("k1", cachedResult("STORE0001"))
	cache.Put("k2", cachedResult("STORE0002"))

	// k1をヒットさせてk2を最古にする
	_, ok := cache.Get("k1")
	assert.True(t, ok)

	// 容量2で3件目を入れると最も使われていないk2が追い出される
	cache.Put("k3", cachedResult("STORE0003"))

	_, ok = cache.Get("k2")
	assert.False(t, ok)
	_, ok = cache.Get("k1")
	assert.True(t, ok)
	_, ok = cache.Get("k3")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Stats().Size)
}

func TestCachePutOverwritesSameKey(t *testing.T) {
	cache := NewPredictionCache(2)
	cache.Put("k1", cachedResult("STORE0001"))
	cache.Put("k1", cachedResult("STORE0002"))

	got, ok := cache.Get("k1")
	assert.True(t, ok)
	// 同一キーは後勝ちで上書きされ、エントリ数は増えない
	assert.Equal(t, "STORE0002", got.Request.StoreID)
	assert.Equal(t, 1, cache.Stats().Size)
}

func TestCacheRemoveDropsSingleEntry(t *testing.T) {
	cache := NewPredictionCache(4)
	cache.Put("k1", cachedResult("STORE0001"))
	cache.Put("k2", cachedResult("STORE0002"))

	cache.Remove("k1")

	_, ok := cache.Get("k1")
	assert.False(t, ok)
	_, ok = cache.Get("k2")
	assert.True(t, ok)
	assert.Equal(t, 1, cache.Stats().Size)

	// 存在しないキーのRemoveは何もしない
	cache.Remove("missing")
	assert.Equal(t, 1, cache.Stats().Size)
}

func TestCacheClearResetsEntriesAndStats(t *testing.T) {
	cache := NewPredictionCache(4)
	cache.Put("k1", cachedResult("STORE0001"))
	cache.Get("k1")
	cache.Get("missing")

	cache.Clear()

	stats := cache.Stats()
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)

	_, ok := cache.Get("k1")
	assert.False(t, ok)
}

func TestCacheDefaultCapacity(t *testing.T) {
	cache := NewPredictionCache(0)
	assert.Equal(t, DefaultCacheCapacity, cache.Stats().Capacity)

	// デフォルト容量を超えても容量までしか保持しない
	for i := 0; i < DefaultCacheCapacity+10; i++ {
		cache.Put(fmt.Sprintf("k%03d", i), cachedResult("STORE0001"))
	}
	assert.Equal(t, DefaultCacheCapacity, cache.Stats().Size)
}
