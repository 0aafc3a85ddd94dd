package editor

import (
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Collection 地图上当前显示的要素集合，按加入顺序绘制，后加入的在上层。
// 锁只保证内存安全，并发写入仍以最后完成者为准。
type Collection struct {
	mu       sync.RWMutex
	features []*Feature
	revision uint64
}

func NewCollection(fs ...*Feature) *Collection {
	c := &Collection{}
	c.Add(fs...)
	return c
}

// Add 加入要素，同一身份重复加入会被忽略
func (c *Collection) Add(fs ...*Feature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range fs {
		if f == nil || c.indexOf(f.Key) >= 0 {
			continue
		}
		c.features = append(c.features, f)
	}
	c.revision++
}

func (c *Collection) Remove(f *Feature) bool {
	if f == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(f.Key)
	if i < 0 {
		return false
	}
	c.removeAt(i)
	return true
}

func (c *Collection) RemoveByID(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, f := range c.features {
		if f.ID == id {
			c.removeAt(i)
			return true
		}
	}
	return false
}

// ReplaceByID 用 f 替换同 id 的要素并保持绘制顺序，不存在时追加
func (c *Collection) ReplaceByID(f *Feature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revision++
	for i, old := range c.features {
		if old.ID == f.ID {
			c.features[i] = f
			return
		}
	}
	c.features = append(c.features, f)
}

// Replace 整体重建，用于全量重载
func (c *Collection) Replace(fs []*Feature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.features = append([]*Feature(nil), fs...)
	c.revision++
}

func (c *Collection) Find(key uuid.UUID) *Feature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(key); i >= 0 {
		return c.features[i]
	}
	return nil
}

func (c *Collection) FindByID(id int64) *Feature {
	if id == 0 {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, f := range c.features {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (c *Collection) Contains(f *Feature) bool {
	return f != nil && c.Find(f.Key) != nil
}

// Features 返回快照
func (c *Collection) Features() []*Feature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Feature(nil), c.features...)
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.features)
}

// Revision 每次变更递增
func (c *Collection) Revision() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}

// FeatureAt 命中测试，返回最上层的要素
func (c *Collection) FeatureAt(p orb.Point, tolerance float64) *Feature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.features) - 1; i >= 0; i-- {
		if hits(c.features[i].Geometry, p, tolerance) {
			return c.features[i]
		}
	}
	return nil
}

func (c *Collection) indexOf(key uuid.UUID) int {
	for i, f := range c.features {
		if f.Key == key {
			return i
		}
	}
	return -1
}

func (c *Collection) removeAt(i int) {
	c.features = append(c.features[:i], c.features[i+1:]...)
	c.revision++
}

func hits(g orb.Geometry, p orb.Point, tolerance float64) bool {
	switch g := g.(type) {
	case orb.Point:
		return planar.Distance(g, p) <= tolerance
	case orb.Polygon:
		if planar.PolygonContains(g, p) {
			return true
		}
		for _, ring := range g {
			for i := 0; i+1 < len(ring); i++ {
				if segmentDistance(ring[i], ring[i+1], p) <= tolerance {
					return true
				}
			}
		}
	}
	return false
}

// segmentDistance 点到线段的距离
func segmentDistance(a, b, p orb.Point) float64 {
	return planar.Distance(p, projectOnSegment(a, b, p))
}

func projectOnSegment(a, b, p orb.Point) orb.Point {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return a
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return orb.Point{a[0] + t*dx, a[1] + t*dy}
}
