package async

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Task 异步操作的唯一结果载体，回调形式与等待形式都读取同一个结果
type Task[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// New 创建一个未完成的任务
func New[T any]() *Task[T] {
	return &Task[T]{done: make(chan struct{})}
}

// Go 在新的协程中执行fn，并以其返回值完成任务
func Go[T any](fn func() (T, error)) *Task[T] {
	t := New[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[ERROR] async task panicked: %v", r)
				var zero T
				t.complete(zero, fmt.Errorf("task panicked: %v", r))
			}
		}()
		v, err := fn()
		t.complete(v, err)
	}()
	return t
}

// Do 同步执行fn，返回已完成的任务
func Do[T any](fn func() (T, error)) *Task[T] {
	v, err := fn()
	t := New[T]()
	t.complete(v, err)
	return t
}

// Resolved 返回一个成功完成的任务
func Resolved[T any](v T) *Task[T] {
	t := New[T]()
	t.complete(v, nil)
	return t
}

// Failed 返回一个失败完成的任务
func Failed[T any](err error) *Task[T] {
	t := New[T]()
	var zero T
	t.complete(zero, err)
	return t
}

// Resolve 以成功结果完成任务，只有第一次调用生效
func (t *Task[T]) Resolve(v T) bool {
	return t.complete(v, nil)
}

// Reject 以错误完成任务，只有第一次调用生效
func (t *Task[T]) Reject(err error) bool {
	var zero T
	return t.complete(zero, err)
}

func (t *Task[T]) complete(v T, err error) bool {
	completed := false
	t.once.Do(func() {
		t.value = v
		t.err = err
		close(t.done)
		completed = true
	})
	return completed
}

// Done 返回任务完成时关闭的通道
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Await 等待任务完成（Promise形式）
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek 返回已完成任务的结果，任务未完成时ok为false
func (t *Task[T]) Peek() (value T, ok bool, err error) {
	select {
	case <-t.done:
		return t.value, true, t.err
	default:
		var zero T
		return zero, false, nil
	}
}

// OnComplete 任务完成后调用cb（回调形式），cb恰好被调用一次
func (t *Task[T]) OnComplete(cb func(T, error)) {
	go func() {
		<-t.done
		cb(t.value, t.err)
	}()
}
