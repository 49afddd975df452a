package control

import (
	"context"
	"time"

	"github.com/RecoveryAshes/dycrawl/internal/utils"
)

// defaultRetryDelays 静态重试延迟表,超出部分按末值截断
var defaultRetryDelays = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
}

// Retrier 固定延迟表的重试执行器
// 无抖动,无熔断;中间失败记警告,最终失败记错误
type Retrier struct {
	maxRetries int
	delays     []time.Duration

	// sleep 测试可注入,避免真实等待
	sleep func(time.Duration)
}

// NewRetrier 创建重试器,maxRetries为总尝试次数
func NewRetrier(maxRetries int) *Retrier {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Retrier{
		maxRetries: maxRetries,
		delays:     defaultRetryDelays,
		sleep:      time.Sleep,
	}
}

// Do 执行op直到成功或尝试次数耗尽
// 返回最后一次的错误;context取消时立即停止
func (r *Retrier) Do(ctx context.Context, name string, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt < r.maxRetries-1 {
			delay := r.delays[min(attempt, len(r.delays)-1)]
			utils.Warnf("%s 第 %d 次尝试失败: %v, %s后重试...", name, attempt+1, lastErr, delay)
			r.sleep(delay)
		}
	}
	utils.Errorf("%s 重试耗尽(%d次), 最终失败: %v", name, r.maxRetries, lastErr)
	return lastErr
}

// DoWithResult 带返回值的重试执行
func DoWithResult[T any](ctx context.Context, r *Retrier, name string, op func() (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, name, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	return result, err
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
