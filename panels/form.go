package panels

import (
	"strings"

	"github.com/GrainArc/MapEdit/methods"
	"github.com/GrainArc/MapEdit/syncer"
	"github.com/pkg/errors"
)

var (
	ErrNameRequired  = errors.New("name is required")
	ErrSubmitPending = errors.New("previous submit still in flight")
)

// Form 新建/编辑表单。WKT 只有在手动编辑时可改。
type Form struct {
	Title       string
	WKT         string
	WKTEditable bool
	Name        string

	submit  func(wkt, name string) *syncer.Op
	pending *syncer.Op
}

// Submit 校验后提交，校验失败或上一次提交未完成时不发起任何调用
func (f *Form) Submit() (*syncer.Op, error) {
	if f.pending != nil {
		select {
		case <-f.pending.Done():
		default:
			return nil, ErrSubmitPending
		}
	}
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	wkt := f.WKT
	if f.WKTEditable {
		if _, err := methods.ParseWKT(wkt); err != nil {
			return nil, err
		}
	}
	f.pending = f.submit(wkt, name)
	return f.pending, nil
}

// Pending 最近一次提交，未提交时为 nil
func (f *Form) Pending() *syncer.Op {
	return f.pending
}

// Dialog 渲染表单的弹窗组件
type Dialog interface {
	Open(f *Form)
	Close(f *Form)
}
