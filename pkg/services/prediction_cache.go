package services

import (
	"container/list"
	"sync"

	"demand-forecast-api/pkg/models"
)

// DefaultCacheCapacity キャッシュ容量のデフォルト値
const DefaultCacheCapacity = 128

// PredictionCache 完了済み7日予測のLRUキャッシュ。
// キーはリクエスト5項目のフィンガープリント（完全一致のみ）。
// 再学習後は必ずClearされ、破棄された世代の結果が返ることはない。
type PredictionCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // 先頭が最近使用
	entries  map[string]*list.Element
	hits     int64
	misses   int64
}

type cacheEntry struct {
	key    string
	result models.PredictionResult
}

// NewPredictionCache 新しいPredictionCacheを作成
func NewPredictionCache(capacity int) *PredictionCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &PredictionCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get フィンガープリントで検索する。ヒットで最近使用に昇格。
func (c *PredictionCache) Get(fingerprint string) (models.PredictionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[fingerprint]; ok {
		c.order.MoveToFront(elem)
		c.hits++
		return elem.Value.(*cacheEntry).result, true
	}
	c.misses++
	return models.PredictionResult{}, false
}

// Put 結果を格納する。容量超過時は最も使われていないものを追い出す。
func (c *PredictionCache) Put(fingerprint string, result models.PredictionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[fingerprint]; ok {
		// 同一キーの重複計算は後勝ちで上書き
		elem.Value.(*cacheEntry).result = result
		c.order.MoveToFront(elem)
		return
	}
	elem := c.order.PushFront(&cacheEntry{key: fingerprint, result: result})
	c.entries[fingerprint] = elem
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Remove 指定キーのエントリを破棄する
func (c *PredictionCache) Remove(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[fingerprint]; ok {
		c.order.Remove(elem)
		delete(c.entries, fingerprint)
	}
}

// Clear 全エントリを破棄する（再学習完了後に呼ばれる）。統計もリセット。
func (c *PredictionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
	c.hits = 0
	c.misses = 0
}

// Stats 現在の統計を返す
func (c *PredictionCache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CacheStats{
		Hits:     c.hits,
		Misses:   c.misses,
		Size:     c.order.Len(),
		Capacity: c.capacity,
	}
}
