package panels

import (
	"context"

	"github.com/GrainArc/MapEdit/editor"
	"github.com/GrainArc/MapEdit/logger"
	"github.com/GrainArc/MapEdit/syncer"
	"github.com/pkg/errors"
)

const EditTitle = "Edit Point"

// CreateTitle 新建表单标题，如 "Add Polygon"
func CreateTitle(kind editor.GeometryKind) string {
	return "Add " + kind.String()
}

// Options 工作台依赖的外部组件
type Options struct {
	API       syncer.API
	UI        syncer.Dispatcher
	Dialog    Dialog
	Viewport  Viewport
	Notifier  syncer.Notifier
	Tolerance float64
}

// Workbench 一个地图视图：要素集合、交互管理器、同步协调器、工具栏与查询面板。
// 除查询面板外，方法都应在 UI 循环上调用。
type Workbench struct {
	ctx    context.Context
	api    syncer.API
	ui     syncer.Dispatcher
	dialog Dialog
	view   Viewport
	notify syncer.Notifier

	col   *editor.Collection
	im    *editor.InteractionManager
	coord *syncer.Coordinator
	query *QueryPanel
}

// NewWorkbench ctx 为地图视图的生命周期
func NewWorkbench(ctx context.Context, opts Options) *Workbench {
	if opts.UI == nil {
		opts.UI = syncer.Inline
	}
	col := editor.NewCollection()
	wb := &Workbench{
		ctx:    ctx,
		api:    opts.API,
		ui:     opts.UI,
		dialog: opts.Dialog,
		view:   opts.Viewport,
		notify: opts.Notifier,
		col:    col,
		im:     editor.NewInteractionManager(col, opts.Tolerance),
		coord:  syncer.New(opts.API, col, opts.UI, opts.Notifier),
	}
	wb.query = &QueryPanel{wb: wb}
	wb.im.SetHandlers(editor.Handlers{
		OnDrawComplete:     wb.onDrawComplete,
		OnModifyBatchReady: wb.onModifyBatch,
		OnDragComplete:     wb.onDragComplete,
		OnError:            wb.onError,
	})
	return wb
}

func (wb *Workbench) Collection() *editor.Collection { return wb.col }

func (wb *Workbench) Interaction() *editor.InteractionManager { return wb.im }

func (wb *Workbench) Coordinator() *syncer.Coordinator { return wb.coord }

func (wb *Workbench) Query() *QueryPanel { return wb.query }

// ---- 工具栏 ----

func (wb *Workbench) Load() *syncer.Op {
	return wb.coord.Load(wb.ctx)
}

func (wb *Workbench) DrawPoint() {
	wb.im.SetMode(editor.Draw(editor.KindPoint))
}

func (wb *Workbench) DrawPolygon() {
	wb.im.SetMode(editor.Draw(editor.KindPolygon))
}

// Modify 修改全部要素，确认点击后逐个提交
func (wb *Workbench) Modify() {
	wb.im.SetMode(editor.Modify(0))
}

func (wb *Workbench) EnableDrag() {
	wb.im.ArmDrag()
}

func (wb *Workbench) Stop() {
	wb.im.SetMode(editor.Idle())
}

// OpenQuery 打开查询面板
func (wb *Workbench) OpenQuery() *syncer.Op {
	return wb.query.Open(wb.ctx)
}

// ---- 手势完成 ----

func (wb *Workbench) onDrawComplete(r editor.DrawResult) {
	form := &Form{Title: CreateTitle(r.Feature.Kind()), WKT: r.WKT}
	form.submit = func(_, name string) *syncer.Op {
		return wb.coord.Create(wb.ctx, r.Feature, name)
	}
	wb.openForm(form)
}

func (wb *Workbench) onModifyBatch(batch editor.ModifyBatch) {
	if batch.Scope == 0 {
		for _, f := range batch.Features {
			wb.coord.Update(wb.ctx, f, syncer.Reconcile)
		}
		return
	}

	// 自动编辑：只有一个要素，确认后弹出编辑表单
	f := batch.Features[0]
	wkt, err := f.WKT()
	if err != nil {
		wb.onError(errors.Wrapf(err, "encode feature %d", f.ID))
		return
	}
	form := &Form{Title: EditTitle, WKT: wkt, Name: f.Name}
	id := f.ID
	form.submit = func(wkt, name string) *syncer.Op {
		return wb.coord.UpdateRecord(wb.ctx, id, wkt, name, syncer.FullReload)
	}
	wb.openForm(form)
}

func (wb *Workbench) onDragComplete(f *editor.Feature) {
	wb.coord.Update(wb.ctx, f, syncer.Reconcile)
}

// onError 绘制失败按保存失败提示，其余均为修改失败
func (wb *Workbench) onError(err error) {
	if errors.Is(err, editor.ErrDrawFailed) {
		wb.notify.Error(syncer.MsgSaveFailed, err)
		return
	}
	wb.notify.Error(syncer.MsgUpdateFailed, err)
}

// openForm 提交成功后关闭表单，失败时保持打开以便重试
func (wb *Workbench) openForm(form *Form) {
	submit := form.submit
	form.submit = func(wkt, name string) *syncer.Op {
		op := submit(wkt, name)
		go func() {
			<-op.Done()
			if op.Err() != nil {
				logger.L().Debugf("form %q stays open: %v", form.Title, op.Err())
				return
			}
			wb.ui.Post(func() { wb.dialog.Close(form) })
		}()
		return op
	}
	wb.dialog.Open(form)
}
