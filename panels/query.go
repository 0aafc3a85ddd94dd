package panels

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GrainArc/MapEdit/apiclient"
	"github.com/GrainArc/MapEdit/editor"
	"github.com/GrainArc/MapEdit/syncer"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

var (
	ErrRowNotFound     = errors.New("no such row")
	ErrFeatureNotShown = errors.New("feature is not on the map")
)

// FitOptions 视图定位参数，Padding 顺序为上右下左，单位像素
type FitOptions struct {
	Padding  [4]float64
	Duration time.Duration
	MaxZoom  float64
}

var DefaultFit = FitOptions{
	Padding:  [4]float64{20, 20, 20, 20},
	Duration: 500 * time.Millisecond,
	MaxZoom:  14,
}

// Viewport 地图视图
type Viewport interface {
	Fit(extent orb.Bound, opts FitOptions)
}

type Status int

const (
	StatusClosed Status = iota
	StatusLoading
	StatusLoaded
	StatusEmpty
	StatusFailed
)

// Message 面板内容区的提示文本
func (s Status) Message() string {
	switch s {
	case StatusLoading:
		return "Loading..."
	case StatusEmpty:
		return "No data found"
	case StatusFailed:
		return "Error loading data"
	}
	return ""
}

// Row 查询面板的一行
type Row = apiclient.Record

// Details 点击行后显示的详情
type Details struct {
	Title string
	WKT   string
}

// QueryPanel 列出全部已保存要素，每行提供定位、手动编辑、自动编辑和删除
type QueryPanel struct {
	wb *Workbench

	mu       sync.Mutex
	status   Status
	rows     []Row
	selected *Details
}

const QueryTitle = "Query Points"

// Open 拉取列表
func (p *QueryPanel) Open(ctx context.Context) *syncer.Op {
	p.mu.Lock()
	p.status = StatusLoading
	p.rows = nil
	p.selected = nil
	p.mu.Unlock()

	return syncer.Go(func() error {
		recs, err := p.wb.api.GetAll(ctx)
		p.mu.Lock()
		defer p.mu.Unlock()
		switch {
		case err != nil:
			p.status = StatusFailed
		case len(recs) == 0:
			p.status = StatusEmpty
		default:
			p.status = StatusLoaded
			p.rows = recs
		}
		return err
	})
}

func (p *QueryPanel) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *QueryPanel) Rows() []Row {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Row(nil), p.rows...)
}

func (p *QueryPanel) row(id int64) (Row, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return Row{}, errors.Wrapf(ErrRowNotFound, "id %d", id)
}

// Select 显示行详情
func (p *QueryPanel) Select(id int64) (Details, error) {
	r, err := p.row(id)
	if err != nil {
		return Details{}, err
	}
	d := Details{Title: fmt.Sprintf("Details for %s", r.Name), WKT: r.WKT}
	p.mu.Lock()
	p.selected = &d
	p.mu.Unlock()
	return d, nil
}

func (p *QueryPanel) Selected() (Details, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected == nil {
		return Details{}, false
	}
	return *p.selected, true
}

// Show 把视图定位到地图上同 id 的要素，不修改任何状态
func (p *QueryPanel) Show(id int64) error {
	if _, err := p.row(id); err != nil {
		return err
	}
	f := p.wb.col.FindByID(id)
	if f == nil {
		return errors.Wrapf(ErrFeatureNotShown, "id %d", id)
	}
	p.wb.view.Fit(f.Extent(), DefaultFit)
	return nil
}

// ManualEdit 打开可编辑 WKT 与名称的表单，提交后全量重载
func (p *QueryPanel) ManualEdit(ctx context.Context, id int64) (*Form, error) {
	r, err := p.row(id)
	if err != nil {
		return nil, err
	}
	form := &Form{Title: EditTitle, WKT: r.WKT, WKTEditable: true, Name: r.Name}
	form.submit = func(wkt, name string) *syncer.Op {
		return p.wb.coord.UpdateRecord(ctx, r.ID, wkt, name, syncer.FullReload)
	}
	p.wb.openForm(form)
	return form, nil
}

// AutoEdit 进入仅作用于该要素的修改模式，确认点击后弹出编辑表单
func (p *QueryPanel) AutoEdit(id int64) error {
	r, err := p.row(id)
	if err != nil {
		return err
	}
	if p.wb.col.FindByID(r.ID) == nil {
		return errors.Wrapf(ErrFeatureNotShown, "id %d", id)
	}
	p.wb.im.SetMode(editor.Modify(r.ID))
	return nil
}

// Delete 删除后刷新列表
func (p *QueryPanel) Delete(ctx context.Context, id int64) *syncer.Op {
	return syncer.Then(p.wb.coord.Delete(ctx, id), func() *syncer.Op {
		return p.Open(ctx)
	})
}
