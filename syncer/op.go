package syncer

import (
	"context"
	"sync"
)

// Op 一次异步同步操作的句柄
type Op struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newOp() *Op {
	return &Op{done: make(chan struct{})}
}

func (o *Op) finish(err error) {
	o.once.Do(func() {
		o.err = err
		close(o.done)
	})
}

// Done 操作结束（结果已应用到要素集合）时关闭
func (o *Op) Done() <-chan struct{} {
	return o.done
}

// Wait 等待操作结束，不能在 UI 循环内调用
func (o *Op) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err 结束前为 nil
func (o *Op) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Then first 结束后执行 next，返回两者合并的句柄，错误优先取 first
func Then(first *Op, next func() *Op) *Op {
	op := newOp()
	go func() {
		<-first.Done()
		err := first.Err()
		nerr := next().Wait(context.Background())
		if err == nil {
			err = nerr
		}
		op.finish(err)
	}()
	return op
}

// Go 在新 goroutine 中执行 fn
func Go(fn func() error) *Op {
	op := newOp()
	go func() { op.finish(fn()) }()
	return op
}
