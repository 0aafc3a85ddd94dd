package services

import (
	"sync"
	"time"
)

// ListCache 要素列表缓存，任何修改后整体失效。
// 每次失效递增代数，查询前取得的代数已过期时 Set 不写入。
type ListCache struct {
	mu         sync.RWMutex
	features   []Feature
	expiresAt  time.Time
	valid      bool
	generation uint64
	ttl        time.Duration
}

// NewListCache ttl <= 0 时不缓存
func NewListCache(ttl time.Duration) *ListCache {
	return &ListCache{ttl: ttl}
}

// Generation 查询数据库前调用，结果随 Set 一起交回
func (c *ListCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Get 获取缓存，返回副本
func (c *ListCache) Get() ([]Feature, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return append([]Feature(nil), c.features...), true
}

// Set 写入 gen 代查询到的列表，期间发生过失效则丢弃
func (c *ListCache) Set(gen uint64, features []Feature) bool {
	if c.ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return false
	}
	c.features = append([]Feature(nil), features...)
	c.expiresAt = time.Now().Add(c.ttl)
	c.valid = true
	return true
}

// Invalidate 清空缓存
func (c *ListCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.features = nil
	c.valid = false
}

// Cached 当前是否持有未过期的列表
func (c *ListCache) Cached() bool {
	_, ok := c.Get()
	return ok
}
