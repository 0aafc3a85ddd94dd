package syncer

import (
	"context"

	"github.com/GrainArc/MapEdit/apiclient"
	"github.com/GrainArc/MapEdit/editor"
	"github.com/GrainArc/MapEdit/logger"
	"github.com/pkg/errors"
)

// 提示消息
const (
	MsgSaved        = "Data saved successfully!"
	MsgSaveFailed   = "Failed to save data"
	MsgUpdated      = "Data updated successfully!"
	MsgUpdateFailed = "Failed to update data"
	MsgDeleted      = "Data deleted successfully!"
	MsgDeleteFailed = "Failed to delete data"
	MsgLoadFailed   = "Failed to load data"
)

// API 要素服务，apiclient.Client 实现
type API interface {
	GetAll(ctx context.Context) ([]apiclient.Record, error)
	Save(ctx context.Context, wkt, name string) (apiclient.Record, error)
	Update(ctx context.Context, rec apiclient.Record) (apiclient.Record, error)
	Delete(ctx context.Context, id int64) error
}

// Notifier 非阻塞提示
type Notifier interface {
	Success(msg string)
	Error(msg string, err error)
}

// Dispatcher 把结果投递回 UI 循环，editor.Loop 实现
type Dispatcher interface {
	Post(fn func()) bool
}

type inline struct{}

func (inline) Post(fn func()) bool {
	fn()
	return true
}

// Inline 在网络 goroutine 上直接执行，仅用于测试和命令行
var Inline Dispatcher = inline{}

// Strategy 更新成功后的对齐方式
type Strategy int

const (
	// Reconcile 按 id 用服务端返回的规范版本替换本地要素
	Reconcile Strategy = iota
	// FullReload 重新拉取全部要素
	FullReload
)

func (s Strategy) String() string {
	if s == FullReload {
		return "full-reload"
	}
	return "reconcile"
}

// Coordinator 驱动增删改调用并把结果应用到要素集合。
// 不对不同要素的调用做串行化，后完成的结果覆盖先完成的。
type Coordinator struct {
	api    API
	col    *editor.Collection
	ui     Dispatcher
	notify Notifier
}

func New(api API, col *editor.Collection, ui Dispatcher, notify Notifier) *Coordinator {
	return &Coordinator{api: api, col: col, ui: ui, notify: notify}
}

func (c *Coordinator) Collection() *editor.Collection {
	return c.col
}

// post 投递到 UI 循环，循环已关闭时直接结束操作
func (c *Coordinator) post(op *Op, fn func()) {
	if !c.ui.Post(fn) {
		op.finish(editor.ErrLoopClosed)
	}
}

func (c *Coordinator) fail(op *Op, msg string, err error) {
	logger.L().Errorf("%s: %v", msg, err)
	c.notify.Error(msg, err)
	op.finish(err)
}

// Load 全量重载
func (c *Coordinator) Load(ctx context.Context) *Op {
	op := newOp()
	go func() {
		fs, err := c.fetch(ctx)
		c.post(op, func() {
			if err != nil {
				c.fail(op, MsgLoadFailed, err)
				return
			}
			c.col.Replace(fs)
			op.finish(nil)
		})
	}()
	return op
}

// fetch 拉取并解码全部记录
func (c *Coordinator) fetch(ctx context.Context) ([]*editor.Feature, error) {
	recs, err := c.api.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return decode(recs), nil
}

// Create 保存新绘制的要素。成功后把 id 合并到 f 并全量重载；失败时 f 保持无 id。
func (c *Coordinator) Create(ctx context.Context, f *editor.Feature, name string) *Op {
	op := newOp()
	wkt, err := f.WKT()
	if err != nil {
		c.fail(op, MsgSaveFailed, errors.Wrap(err, "encode feature"))
		return op
	}

	go func() {
		rec, err := c.api.Save(ctx, wkt, name)
		if err != nil {
			c.post(op, func() { c.fail(op, MsgSaveFailed, err) })
			return
		}
		recs, loadErr := c.api.GetAll(ctx)
		c.post(op, func() {
			id := rec.ID
			if id == 0 && loadErr == nil {
				id = c.adoptID(recs, name)
			}
			if id != 0 {
				f.ID = id
			}
			f.Name = name
			c.notify.Success(MsgSaved)
			if loadErr != nil {
				c.fail(op, MsgLoadFailed, loadErr)
				return
			}
			c.col.Replace(decode(recs))
			op.finish(nil)
		})
	}()
	return op
}

// adoptID 服务端未回显 id 时，取重载结果中唯一一条本地不存在的同名记录
func (c *Coordinator) adoptID(recs []apiclient.Record, name string) int64 {
	var found int64
	for _, r := range recs {
		if r.Name != name || c.col.FindByID(r.ID) != nil {
			continue
		}
		if found != 0 {
			logger.L().Warnf("ambiguous id for new feature %q", name)
			return 0
		}
		found = r.ID
	}
	return found
}

// decode 无法解码的记录跳过
func decode(recs []apiclient.Record) []*editor.Feature {
	fs := make([]*editor.Feature, 0, len(recs))
	for _, r := range recs {
		f, err := editor.FeatureFromWKT(r.ID, r.Name, r.WKT)
		if err != nil {
			logger.L().Warnf("skip feature %d: %v", r.ID, err)
			continue
		}
		fs = append(fs, f)
	}
	return fs
}

// Update 提交要素当前几何与名称，f 必须已有 id
func (c *Coordinator) Update(ctx context.Context, f *editor.Feature, strategy Strategy) *Op {
	if !f.HasID() {
		op := newOp()
		c.fail(op, MsgUpdateFailed, errors.Wrapf(editor.ErrIdentityMissing, "update feature %s", f.Key))
		return op
	}
	wkt, err := f.WKT()
	if err != nil {
		op := newOp()
		c.fail(op, MsgUpdateFailed, errors.Wrap(err, "encode feature"))
		return op
	}
	return c.update(ctx, apiclient.Record{ID: f.ID, WKT: wkt, Name: f.Name}, strategy)
}

// UpdateRecord 手动编辑：直接提交原始字段
func (c *Coordinator) UpdateRecord(ctx context.Context, id int64, wkt, name string, strategy Strategy) *Op {
	if id == 0 {
		op := newOp()
		c.fail(op, MsgUpdateFailed, errors.Wrap(editor.ErrIdentityMissing, "update record"))
		return op
	}
	return c.update(ctx, apiclient.Record{ID: id, WKT: wkt, Name: name}, strategy)
}

func (c *Coordinator) update(ctx context.Context, rec apiclient.Record, strategy Strategy) *Op {
	op := newOp()
	go func() {
		out, err := c.api.Update(ctx, rec)
		if err != nil {
			c.post(op, func() { c.fail(op, MsgUpdateFailed, err) })
			return
		}

		if strategy == FullReload {
			fs, loadErr := c.fetch(ctx)
			c.post(op, func() {
				c.notify.Success(MsgUpdated)
				if loadErr != nil {
					c.fail(op, MsgLoadFailed, loadErr)
					return
				}
				c.col.Replace(fs)
				op.finish(nil)
			})
			return
		}

		if out.ID == 0 {
			out.ID = rec.ID
		}
		if out.WKT == "" {
			out.WKT = rec.WKT
		}
		if out.Name == "" {
			out.Name = rec.Name
		}
		nf, decErr := editor.FeatureFromWKT(out.ID, out.Name, out.WKT)
		c.post(op, func() {
			c.notify.Success(MsgUpdated)
			if decErr != nil {
				logger.L().Warnf("reconcile feature %d: %v", out.ID, decErr)
				op.finish(nil)
				return
			}
			if prev := c.col.FindByID(nf.ID); prev != nil {
				nf.Key = prev.Key
			}
			c.col.ReplaceByID(nf)
			op.finish(nil)
		})
	}()
	return op
}

// Delete 删除后无论成败都全量重载，失败时服务端数据仍在，本地不会丢失要素
func (c *Coordinator) Delete(ctx context.Context, id int64) *Op {
	op := newOp()
	if id == 0 {
		c.fail(op, MsgDeleteFailed, errors.Wrap(editor.ErrIdentityMissing, "delete feature"))
		return op
	}
	go func() {
		err := c.api.Delete(ctx, id)
		fs, loadErr := c.fetch(ctx)
		c.post(op, func() {
			if err != nil {
				c.notify.Error(MsgDeleteFailed, err)
				logger.L().Errorf("%s: %v", MsgDeleteFailed, err)
			} else {
				c.notify.Success(MsgDeleted)
			}
			if loadErr != nil {
				c.fail(op, MsgLoadFailed, loadErr)
				return
			}
			c.col.Replace(fs)
			op.finish(err)
		})
	}()
	return op
}

// Watch 收到其它会话的变更事件时全量重载，feed 关闭后结束
func (c *Coordinator) Watch(ctx context.Context, feed <-chan apiclient.Event) *Op {
	op := newOp()
	go func() {
		defer op.finish(nil)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-feed:
				if !ok {
					return
				}
				logger.L().Debugf("feature %d %s elsewhere, reloading", ev.ID, ev.Type)
				if err := c.Load(ctx).Wait(ctx); err != nil && ctx.Err() == nil {
					logger.L().Warnf("reload after %s event: %v", ev.Type, err)
				}
			}
		}
	}()
	return op
}
