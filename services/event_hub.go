package services

import (
	"sync"

	"github.com/GrainArc/MapEdit/logger"
	"github.com/GrainArc/MapEdit/metrics"
)

// 变更事件类型
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// ChangeEvent 推送给订阅者的变更，Origin 为发起修改的客户端会话
type ChangeEvent struct {
	Type   string `json:"type"`
	ID     int64  `json:"id"`
	Origin string `json:"origin,omitempty"`
}

// EventHub 变更事件广播。慢订阅者的事件直接丢弃，不阻塞写请求。
type EventHub struct {
	mu     sync.RWMutex
	subs   map[chan ChangeEvent]struct{}
	buffer int
}

func NewEventHub(buffer int) *EventHub {
	return &EventHub{subs: make(map[chan ChangeEvent]struct{}), buffer: buffer}
}

// Subscribe 返回事件通道和取消函数，取消后通道关闭
func (h *EventHub) Subscribe() (<-chan ChangeEvent, func()) {
	ch := make(chan ChangeEvent, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	metrics.EventSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
			metrics.EventSubscribers.Dec()
		})
	}
}

func (h *EventHub) Publish(ev ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			metrics.EventsDroppedTotal.Inc()
			logger.L().Warnf("drop %s event for feature %d: subscriber too slow", ev.Type, ev.ID)
		}
	}
}

func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
