package control

import (
	"context"
	"fmt"
	"sync"
)

// TaskResult 批量任务中单项的结果,与输入下标对齐
type TaskResult[T any] struct {
	Index int
	Value T
	Err   error
}

// RunBatch 以W个并发执行一批独立任务
// 所有任务一次性调度,计数信号量限制同时执行数;单项失败不影响其余任务,
// panic被捕获并转为该项的错误结果
func RunBatch[In, Out any](ctx context.Context, workers int, items []In, task func(ctx context.Context, item In) (Out, error)) []TaskResult[Out] {
	if workers < 1 {
		workers = 1
	}

	results := make([]TaskResult[Out], len(items))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := range items {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx] = TaskResult[Out]{Index: idx, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			defer func() {
				if r := recover(); r != nil {
					results[idx] = TaskResult[Out]{Index: idx, Err: fmt.Errorf("任务panic: %v", r)}
				}
			}()

			value, err := task(ctx, items[idx])
			results[idx] = TaskResult[Out]{Index: idx, Value: value, Err: err}
		}(i)
	}

	wg.Wait()
	return results
}
