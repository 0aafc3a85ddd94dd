package editor

import (
	"fmt"

	"github.com/GrainArc/MapEdit/logger"
	"github.com/GrainArc/MapEdit/methods"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
)

var (
	ErrIncompleteSketch = errors.New("polygon sketch needs at least 3 vertices")
	// ErrDrawFailed 绘制完成但无法生成要素
	ErrDrawFailed = errors.New("draw failed")
)

type ModeKind int

const (
	ModeIdle ModeKind = iota
	ModeDrawing
	ModeModifying
	ModeDragging
)

func (k ModeKind) String() string {
	return [...]string{"Idle", "Drawing", "Modifying", "Dragging"}[k]
}

// Mode 当前编辑手势。Draw 仅对 Drawing 有效；Scope 仅对 Modifying 有效，0 表示全部要素。
type Mode struct {
	Kind  ModeKind
	Draw  GeometryKind
	Scope int64
}

func Idle() Mode { return Mode{Kind: ModeIdle} }

func Draw(kind GeometryKind) Mode { return Mode{Kind: ModeDrawing, Draw: kind} }

func Modify(scope int64) Mode { return Mode{Kind: ModeModifying, Scope: scope} }

// DragTool 拖拽工具，见 SetMode
func DragTool() Mode { return Mode{Kind: ModeDragging} }

func (m Mode) String() string { return m.Kind.String() }

func (m Mode) Is(kind ModeKind) bool { return m.Kind == kind }

// DrawResult 绘制完成：新要素(无 id)及其经纬度 WKT
type DrawResult struct {
	Feature *Feature
	WKT     string
}

// ModifyBatch 确认点击时交付的修改批次
type ModifyBatch struct {
	Scope    int64
	Features []*Feature
}

// Handlers 手势完成事件
type Handlers struct {
	OnDrawComplete     func(DrawResult)
	OnModifyBatchReady func(ModifyBatch)
	OnDragComplete     func(*Feature)
	OnError            func(error)
}

// Popup 悬停弹窗内容
type Popup struct {
	Visible     bool
	Position    orb.Point
	Coordinates string
	Name        string
}

func (p Popup) Text() string {
	return fmt.Sprintf("Coordinates: %s\nName: %s", p.Coordinates, p.Name)
}

// binding 某个模式挂到地图上的事件处理。down 返回 true 表示接管本次按下。
type binding struct {
	name     string
	bound    bool
	once     bool
	down     func(orb.Point) bool
	drag     func(orb.Point)
	move     func(orb.Point)
	up       func(orb.Point)
	click    func(orb.Point)
	dblclick func(orb.Point)
}

type vertexGrab struct {
	feature *Feature
	ring    int // 点要素为 -1
	index   int
}

// InteractionManager 每个地图视图一个，持有当前手势及其事件绑定。
// 非并发安全，所有方法应在 UI 循环上调用。
type InteractionManager struct {
	col       *Collection
	tolerance float64
	handlers  Handlers

	mode     Mode
	bindings []*binding
	pending  *PendingEdits

	sketch    []orb.Point
	grab      *vertexGrab
	confirm   *binding
	drag      *DragSession
	dragArmed bool

	pressed bool
	claimed *binding

	cursor string
	popup  Popup
}

// NewInteractionManager tolerance 为命中容差，地图单位
func NewInteractionManager(col *Collection, tolerance float64) *InteractionManager {
	return &InteractionManager{
		col:       col,
		tolerance: tolerance,
		pending:   NewPendingEdits(),
	}
}

func (m *InteractionManager) SetHandlers(h Handlers) {
	m.handlers = h
}

func (m *InteractionManager) Mode() Mode {
	return m.mode
}

func (m *InteractionManager) DragArmed() bool {
	return m.dragArmed
}

func (m *InteractionManager) Pending() *PendingEdits {
	return m.pending
}

func (m *InteractionManager) Cursor() string {
	return m.cursor
}

func (m *InteractionManager) Popup() Popup {
	return m.popup
}

// Sketch 正在绘制的顶点
func (m *InteractionManager) Sketch() []orb.Point {
	return append([]orb.Point(nil), m.sketch...)
}

// Bindings 当前挂载的处理器名称
func (m *InteractionManager) Bindings() []string {
	names := make([]string, 0, len(m.bindings))
	for _, b := range m.bindings {
		names = append(names, b.name)
	}
	return names
}

// SetMode 先拆除当前模式再进入新模式，未提交的手势数据被丢弃。
// DragTool() 只是挂上拖拽工具，按下命中要素后才进入 Dragging。
func (m *InteractionManager) SetMode(mode Mode) {
	m.teardown()
	switch mode.Kind {
	case ModeDrawing:
		m.startDraw(mode.Draw)
	case ModeModifying:
		m.startModify(mode.Scope)
	case ModeDragging:
		m.armDrag()
	}
	logger.L().Debugf("interaction mode -> %s", mode)
}

// ArmDrag 挂上拖拽工具
func (m *InteractionManager) ArmDrag() {
	m.SetMode(DragTool())
}

func (m *InteractionManager) teardown() {
	for _, b := range m.bindings {
		b.bound = false
	}
	m.bindings = nil
	m.sketch = nil
	m.grab = nil
	m.confirm = nil
	m.drag = nil
	m.dragArmed = false
	m.pending.Reset()
	m.pressed = false
	m.claimed = nil
	m.cursor = ""
	m.mode = Idle()
}

func (m *InteractionManager) bind(b *binding) {
	b.bound = true
	m.bindings = append(m.bindings, b)
}

func (m *InteractionManager) unbind(b *binding) {
	b.bound = false
	for i, x := range m.bindings {
		if x == b {
			m.bindings = append(m.bindings[:i], m.bindings[i+1:]...)
			return
		}
	}
}

// snapshot 事件分发期间处理器可能切换模式，先拷贝再逐个检查是否仍挂载
func (m *InteractionManager) snapshot() []*binding {
	return append([]*binding(nil), m.bindings...)
}

func (m *InteractionManager) PointerDown(p orb.Point) {
	m.pressed = true
	m.claimed = nil
	bs := m.snapshot()
	for i := len(bs) - 1; i >= 0; i-- {
		b := bs[i]
		if b.bound && b.down != nil && b.down(p) {
			m.claimed = b
			return
		}
	}
}

// PointerMove 按下状态下为拖动，否则为悬停
func (m *InteractionManager) PointerMove(p orb.Point) {
	if m.pressed {
		if b := m.claimed; b != nil && b.bound && b.drag != nil {
			b.drag(p)
		}
		return
	}
	m.hover(p)
	for _, b := range m.snapshot() {
		if b.bound && b.move != nil {
			b.move(p)
		}
	}
}

func (m *InteractionManager) PointerUp(p orb.Point) {
	b := m.claimed
	m.pressed = false
	m.claimed = nil
	if b != nil && b.bound && b.up != nil {
		b.up(p)
	}
}

// Click 单击，拖动后的抬起不算单击
func (m *InteractionManager) Click(p orb.Point) {
	for _, b := range m.snapshot() {
		if !b.bound || b.click == nil {
			continue
		}
		if b.once {
			m.unbind(b)
		}
		b.click(p)
	}
}

func (m *InteractionManager) DoubleClick(p orb.Point) {
	for _, b := range m.snapshot() {
		if b.bound && b.dblclick != nil {
			b.dblclick(p)
		}
	}
}

func (m *InteractionManager) hover(p orb.Point) {
	hit := m.col.FeatureAt(p, m.tolerance)
	if hit == nil {
		m.popup = Popup{}
		return
	}
	anchor := hit.Anchor()
	m.popup = Popup{
		Visible:     true,
		Position:    anchor,
		Coordinates: methods.HDMS(methods.ToLonLat(anchor).(orb.Point)),
		Name:        hit.DisplayName(),
	}
}

func (m *InteractionManager) emitError(err error) {
	logger.L().Warnf("interaction: %v", err)
	if m.handlers.OnError != nil {
		m.handlers.OnError(err)
	}
}

// ---- 绘制 ----

func (m *InteractionManager) startDraw(kind GeometryKind) {
	m.mode = Draw(kind)
	m.bind(&binding{
		name:     "draw",
		click:    m.drawClick,
		dblclick: m.drawDoubleClick,
	})
}

func (m *InteractionManager) drawClick(p orb.Point) {
	if m.mode.Draw == KindPoint {
		m.completeDraw(p)
		return
	}
	if len(m.sketch) >= 3 && planar.Distance(p, m.sketch[0]) <= m.tolerance {
		_ = m.FinishDrawing()
		return
	}
	m.addVertex(p)
}

func (m *InteractionManager) drawDoubleClick(p orb.Point) {
	if m.mode.Draw != KindPolygon {
		return
	}
	m.addVertex(p)
	if err := m.FinishDrawing(); err != nil {
		logger.L().Debugf("draw: %v", err)
	}
}

func (m *InteractionManager) addVertex(p orb.Point) {
	if n := len(m.sketch); n > 0 && planar.Distance(p, m.sketch[n-1]) <= m.tolerance {
		return
	}
	m.sketch = append(m.sketch, p)
}

// FinishDrawing 结束多边形绘制
func (m *InteractionManager) FinishDrawing() error {
	if !m.mode.Is(ModeDrawing) || m.mode.Draw != KindPolygon {
		return errors.Errorf("not drawing a polygon (mode %s)", m.mode)
	}
	if len(m.sketch) < 3 {
		return ErrIncompleteSketch
	}
	ring := append(orb.Ring(nil), m.sketch...)
	ring = append(ring, ring[0])
	m.completeDraw(orb.Polygon{ring})
	return nil
}

func (m *InteractionManager) completeDraw(g orb.Geometry) {
	f := NewFeature(g)
	m.col.Add(f)
	m.teardown()

	wkt, err := f.WKT()
	if err != nil {
		m.emitError(errors.Wrapf(ErrDrawFailed, "encode drawn feature: %v", err))
		return
	}
	if m.handlers.OnDrawComplete != nil {
		m.handlers.OnDrawComplete(DrawResult{Feature: f, WKT: wkt})
	}
}

// ---- 修改 ----

func (m *InteractionManager) startModify(scope int64) {
	m.mode = Modify(scope)
	m.bind(&binding{
		name: "modify",
		down: m.modifyDown,
		drag: m.modifyDrag,
		up:   m.modifyUp,
	})
}

func (m *InteractionManager) inScope(f *Feature) bool {
	return m.mode.Scope == 0 || f.ID == m.mode.Scope
}

func (m *InteractionManager) modifyDown(p orb.Point) bool {
	fs := m.col.Features()
	for i := len(fs) - 1; i >= 0; i-- {
		if f := fs[i]; m.inScope(f) {
			if g := grabVertex(f, p, m.tolerance); g != nil {
				m.grab = g
				return true
			}
		}
	}
	for i := len(fs) - 1; i >= 0; i-- {
		if f := fs[i]; m.inScope(f) {
			if g := insertVertex(f, p, m.tolerance); g != nil {
				m.grab = g
				return true
			}
		}
	}
	return false
}

func (m *InteractionManager) modifyDrag(p orb.Point) {
	if m.grab != nil {
		moveVertex(m.grab, p)
	}
}

func (m *InteractionManager) modifyUp(p orb.Point) {
	if m.grab == nil {
		return
	}
	moveVertex(m.grab, p)
	m.pending.Record(m.grab.feature)
	m.grab = nil
	if m.confirm == nil {
		m.confirm = &binding{name: "modify-confirm", once: true, click: m.confirmModify}
		m.bind(m.confirm)
	}
}

func (m *InteractionManager) confirmModify(orb.Point) {
	batch := ModifyBatch{Scope: m.mode.Scope, Features: m.pending.Drain()}
	m.teardown()
	if len(batch.Features) > 0 && m.handlers.OnModifyBatchReady != nil {
		m.handlers.OnModifyBatchReady(batch)
	}
}

func grabVertex(f *Feature, p orb.Point, tolerance float64) *vertexGrab {
	switch g := f.Geometry.(type) {
	case orb.Point:
		if planar.Distance(g, p) <= tolerance {
			return &vertexGrab{feature: f, ring: -1}
		}
	case orb.Polygon:
		best, bestDist := (*vertexGrab)(nil), tolerance
		for r, ring := range g {
			for i, v := range ring {
				if d := planar.Distance(v, p); d <= bestDist {
					best, bestDist = &vertexGrab{feature: f, ring: r, index: i}, d
				}
			}
		}
		return best
	}
	return nil
}

// insertVertex 按在边上时插入新顶点
func insertVertex(f *Feature, p orb.Point, tolerance float64) *vertexGrab {
	poly, ok := f.Geometry.(orb.Polygon)
	if !ok {
		return nil
	}
	for r, ring := range poly {
		for i := 0; i+1 < len(ring); i++ {
			if segmentDistance(ring[i], ring[i+1], p) > tolerance {
				continue
			}
			q := projectOnSegment(ring[i], ring[i+1], p)
			next := make(orb.Ring, 0, len(ring)+1)
			next = append(next, ring[:i+1]...)
			next = append(next, q)
			next = append(next, ring[i+1:]...)
			poly[r] = next
			return &vertexGrab{feature: f, ring: r, index: i + 1}
		}
	}
	return nil
}

func moveVertex(g *vertexGrab, p orb.Point) {
	if g.ring < 0 {
		g.feature.Geometry = p
		return
	}
	poly, ok := g.feature.Geometry.(orb.Polygon)
	if !ok || g.ring >= len(poly) {
		return
	}
	ring := poly[g.ring]
	ring[g.index] = p
	// 首尾顶点保持闭合
	last := len(ring) - 1
	if g.index == 0 {
		ring[last] = p
	} else if g.index == last {
		ring[0] = p
	}
}

// ---- 拖拽 ----

func (m *InteractionManager) armDrag() {
	m.dragArmed = true
	m.bind(&binding{
		name: "drag",
		down: m.dragDown,
		drag: m.dragMove,
		up:   m.dragUp,
		move: m.dragHover,
	})
}

func (m *InteractionManager) dragDown(p orb.Point) bool {
	if !m.mode.Is(ModeIdle) {
		return false
	}
	s := handleDragDown(m.col.FeatureAt(p, m.tolerance), p)
	if s == nil {
		return false
	}
	m.drag = s
	m.mode = Mode{Kind: ModeDragging}
	return true
}

func (m *InteractionManager) dragMove(p orb.Point) {
	if m.drag != nil {
		handleDragMove(m.drag, p)
	}
}

func (m *InteractionManager) dragHover(p orb.Point) {
	m.cursor = handleDragHover(m.col.FeatureAt(p, m.tolerance))
}

func (m *InteractionManager) dragUp(orb.Point) {
	s := m.drag
	m.drag = nil
	m.mode = Idle()
	if s == nil {
		return
	}
	f, err := handleDragUp(s)
	if err != nil {
		m.emitError(errors.Wrapf(err, "drag feature %s", f.Key))
		return
	}
	if m.handlers.OnDragComplete != nil {
		m.handlers.OnDragComplete(f)
	}
}
