package service

import (
	"context"
	"errors"

	"osaccount/pkg/async"
)

// Callback 尾随回调形式，err为nil时result有效
type Callback[T any] func(err error, result T)

// WithCallback 将任务结果以回调形式交付，与Await读取的是同一个结果
func WithCallback[T any](task *async.Task[T], cb Callback[T]) *async.Task[T] {
	if cb != nil {
		task.OnComplete(func(v T, err error) { cb(err, v) })
	}
	return task
}

// rejected 返回已失败的任务，前置检查失败统一包装为该操作的KitError
func rejected[T any](op Operation, err error) *async.Task[T] {
	var kitErr *KitError
	if !errors.As(err, &kitErr) {
		err = newKitError(op, err)
	}
	return async.Failed[T](err)
}

// settle 同步执行fn并返回已完成的任务
func settle[T any](op Operation, fn func() (T, error)) *async.Task[T] {
	v, err := fn()
	if err != nil {
		return rejected[T](op, err)
	}
	return async.Resolved(v)
}

// guarded 先做权限检查，再同步执行fn
func guarded[T any](ctx context.Context, authorizer Authorizer, op Operation, fn func() (T, error)) *async.Task[T] {
	if err := authorizer.Check(ctx, op); err != nil {
		return async.Failed[T](err)
	}
	return settle(op, fn)
}
