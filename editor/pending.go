package editor

import (
	"sync"

	"github.com/google/uuid"
)

// PendingEdits 一次修改会话中被改动过的要素，按身份去重
type PendingEdits struct {
	mu    sync.Mutex
	order []*Feature
	seen  map[uuid.UUID]struct{}
}

func NewPendingEdits() *PendingEdits {
	return &PendingEdits{seen: make(map[uuid.UUID]struct{})}
}

// Record 记录要素，重复记录返回 false
func (p *PendingEdits) Record(f *Feature) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.seen[f.Key]; ok {
		return false
	}
	p.seen[f.Key] = struct{}{}
	p.order = append(p.order, f)
	return true
}

// Drain 取出当前批次并清空
func (p *PendingEdits) Drain() []*Feature {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.order
	p.order = nil
	p.seen = make(map[uuid.UUID]struct{})
	return out
}

func (p *PendingEdits) Reset() {
	p.Drain()
}

func (p *PendingEdits) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}
