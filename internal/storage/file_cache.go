// internal/storage/file_cache.go
package storage

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// contentCache 文件内容的内存缓存，按最近读取淘汰
type contentCache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	maxSize    int
	expiration time.Duration
}

// cacheEntry 缓存条目
type cacheEntry struct {
	data     []byte
	modTime  time.Time
	cachedAt time.Time
	lastRead time.Time
}

func newContentCache(maxSize int, expiration time.Duration) *contentCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if expiration <= 0 {
		expiration = 5 * time.Minute
	}
	return &contentCache{
		entries:    make(map[string]*cacheEntry),
		maxSize:    maxSize,
		expiration: expiration,
	}
}

// get 命中要求未过期且文件修改时间未变
func (c *contentCache) get(path string, modTime time.Time) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok {
		return nil, false
	}
	if time.Since(entry.cachedAt) > c.expiration || !entry.modTime.Equal(modTime) {
		delete(c.entries, path)
		return nil, false
	}
	entry.lastRead = time.Now()
	return entry.data, true
}

func (c *contentCache) put(path string, data []byte, modTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.entries[path] = &cacheEntry{data: data, modTime: modTime, cachedAt: now, lastRead: now}
	if len(c.entries) > c.maxSize {
		c.evictLocked(len(c.entries) - c.maxSize)
	}
}

func (c *contentCache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

func (c *contentCache) invalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// sweep 清理过期条目，返回清理数量
func (c *contentCache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if time.Since(entry.cachedAt) > c.expiration {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *contentCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLocked 移除最久未读取的 count 个条目
func (c *contentCache) evictLocked(count int) {
	type keyed struct {
		key      string
		lastRead time.Time
	}
	all := make([]keyed, 0, len(c.entries))
	for key, entry := range c.entries {
		all = append(all, keyed{key, entry.lastRead})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].lastRead.Before(all[j].lastRead) })
	for i := 0; i < count && i < len(all); i++ {
		delete(c.entries, all[i].key)
	}
}
