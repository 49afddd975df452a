package control

import (
	"sync"
	"time"
)

// RateLimiter 全局请求限速器
// 保证相邻两次Acquire返回之间至少间隔 1/maxPerSecond
// 只约束发出时机,不约束请求在途并发
type RateLimiter struct {
	minInterval time.Duration

	mu           sync.Mutex
	lastDispatch time.Time

	// sleep 测试可注入,避免真实等待
	sleep func(time.Duration)
	now   func() time.Time
}

// NewRateLimiter 创建限速器,maxPerSecond<=0时按1处理
func NewRateLimiter(maxPerSecond float64) *RateLimiter {
	if maxPerSecond <= 0 {
		maxPerSecond = 1
	}
	return &RateLimiter{
		minInterval: time.Duration(float64(time.Second) / maxPerSecond),
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

// Acquire 阻塞直到距上次放行至少经过最小间隔
// 锁内预留下一个时隙后即释放锁,睡眠不阻塞其他goroutine排队
func (r *RateLimiter) Acquire() {
	r.mu.Lock()
	now := r.now()
	next := r.lastDispatch.Add(r.minInterval)
	if next.Before(now) {
		next = now
	}
	r.lastDispatch = next
	r.mu.Unlock()

	if wait := next.Sub(now); wait > 0 {
		r.sleep(wait)
	}
}

// MinInterval 返回配置的最小间隔
func (r *RateLimiter) MinInterval() time.Duration {
	return r.minInterval
}
