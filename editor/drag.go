package editor

import "github.com/paulmach/orb"

// CursorPointer 拖拽工具悬停在要素上时的光标
const CursorPointer = "pointer"

// DragSession 一次拖拽：按下时创建，移动时按增量平移，抬起时结束
type DragSession struct {
	Feature *Feature
	Last    orb.Point
}

// handleDragDown 未命中要素时不开启会话
func handleDragDown(hit *Feature, p orb.Point) *DragSession {
	if hit == nil {
		return nil
	}
	return &DragSession{Feature: hit, Last: p}
}

func handleDragMove(s *DragSession, p orb.Point) {
	dx := p[0] - s.Last[0]
	dy := p[1] - s.Last[1]
	if dx == 0 && dy == 0 {
		return
	}
	s.Feature.Translate(dx, dy)
	s.Last = p
}

func handleDragHover(hit *Feature) string {
	if hit != nil {
		return CursorPointer
	}
	return ""
}

// handleDragUp 结束会话；要素没有 id 时无法提交
func handleDragUp(s *DragSession) (*Feature, error) {
	if !s.Feature.HasID() {
		return s.Feature, ErrIdentityMissing
	}
	return s.Feature, nil
}
