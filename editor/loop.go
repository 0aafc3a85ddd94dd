package editor

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var ErrLoopClosed = errors.New("ui loop closed")

// Loop 单线程 UI 事件循环。手势事件、表单提交与要素集合的修改都投递到这里执行，
// 网络调用在各自的 goroutine 中完成后再投递回来。
type Loop struct {
	tasks  chan func()
	closed chan struct{}
	once   sync.Once
}

func NewLoop(buffer int) *Loop {
	return &Loop{
		tasks:  make(chan func(), buffer),
		closed: make(chan struct{}),
	}
}

// Post 投递任务，循环已停止时返回 false
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.closed:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.closed:
		return false
	}
}

// Run 阻塞执行任务直到 ctx 结束
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.closed) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Call 投递并等待执行完成，不能在循环自身内调用
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() { fn(); close(done) }) {
		return ErrLoopClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
