package spatial

import (
	"strconv"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultAreaCacheSize bounds the area memo.
	DefaultAreaCacheSize = 1024
	// DefaultPathCacheSize bounds the SVG path-string memo.
	DefaultPathCacheSize = 1024
)

// CacheStats reports memo cache usage.
type CacheStats struct {
	AreaEntries int    `json:"areaEntries"`
	AreaHits    uint64 `json:"areaHits"`
	AreaMisses  uint64 `json:"areaMisses"`
	PathEntries int    `json:"pathEntries"`
	PathHits    uint64 `json:"pathHits"`
	PathMisses  uint64 `json:"pathMisses"`
}

// memo is a bounded LRU with hit/miss counters. Entries are keyed by the
// serialized coordinates, so unchanged geometry is never recomputed and
// long editing sessions cannot grow the cache without bound.
type memo[V any] struct {
	cache  *lru.Cache[string, V]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func newMemo[V any](size int) *memo[V] {
	if size <= 0 {
		size = 1
	}
	c, err := lru.New[string, V](size)
	if err != nil {
		// lru.New only fails for non-positive sizes, which are clamped above.
		panic(err)
	}
	return &memo[V]{cache: c}
}

func (m *memo[V]) get(key string) (V, bool) {
	v, ok := m.cache.Get(key)
	if ok {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	return v, ok
}

func (m *memo[V]) add(key string, v V) {
	m.cache.Add(key, v)
}

var cacheMu sync.RWMutex

var (
	areaMemo = newMemo[float64](DefaultAreaCacheSize)
	pathMemo = newMemo[string](DefaultPathCacheSize)
)

// ConfigureCaches replaces the area and path memo caches with empty caches
// of the given capacities. Non-positive sizes keep the defaults.
func ConfigureCaches(areaSize, pathSize int) {
	if areaSize <= 0 {
		areaSize = DefaultAreaCacheSize
	}
	if pathSize <= 0 {
		pathSize = DefaultPathCacheSize
	}
	cacheMu.Lock()
	defer cacheMu.Unlock()
	areaMemo = newMemo[float64](areaSize)
	pathMemo = newMemo[string](pathSize)
}

// ResetCaches empties both memo caches, keeping their capacities.
func ResetCaches() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	areaMemo.cache.Purge()
	areaMemo.hits.Store(0)
	areaMemo.misses.Store(0)
	pathMemo.cache.Purge()
	pathMemo.hits.Store(0)
	pathMemo.misses.Store(0)
}

// Stats returns the current memo cache statistics.
func Stats() CacheStats {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	return CacheStats{
		AreaEntries: areaMemo.cache.Len(),
		AreaHits:    areaMemo.hits.Load(),
		AreaMisses:  areaMemo.misses.Load(),
		PathEntries: pathMemo.cache.Len(),
		PathHits:    pathMemo.hits.Load(),
		PathMisses:  pathMemo.misses.Load(),
	}
}

func currentAreaMemo() *memo[float64] {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	return areaMemo
}

func currentPathMemo() *memo[string] {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	return pathMemo
}

// coordinateKey serializes coords into a compact cache key. The prefix
// distinguishes 2D from 3D interpretations of the same points.
func coordinateKey(prefix byte, coords []Coordinate) string {
	buf := make([]byte, 0, 2+len(coords)*24)
	buf = append(buf, prefix, '|')
	for _, c := range coords {
		buf = strconv.AppendFloat(buf, c.X, 'g', -1, 64)
		buf = append(buf, ',')
		buf = strconv.AppendFloat(buf, c.Y, 'g', -1, 64)
		if c.Z != nil {
			buf = append(buf, ',')
			buf = strconv.AppendFloat(buf, *c.Z, 'g', -1, 64)
		}
		buf = append(buf, ';')
	}
	return string(buf)
}
