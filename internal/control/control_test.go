package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestRateLimiterSpacing N次Acquire的总耗时不少于(N-1)个最小间隔
func TestRateLimiterSpacing(t *testing.T) {
	r := NewRateLimiter(50) // 20ms间隔,测试耗时可控

	const n = 5
	start := time.Now()
	for i := 0; i < n; i++ {
		r.Acquire()
	}
	elapsed := time.Since(start)

	minElapsed := time.Duration(n-1) * r.MinInterval()
	if elapsed < minElapsed {
		t.Errorf("%d 次 Acquire 耗时 %v, 低于下限 %v", n, elapsed, minElapsed)
	}
}

// TestRateLimiterConcurrent 并发调用同样满足间隔下限
func TestRateLimiterConcurrent(t *testing.T) {
	r := NewRateLimiter(100) // 10ms间隔

	const n = 6
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Acquire()
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	minElapsed := time.Duration(n-1) * r.MinInterval()
	if elapsed < minElapsed {
		t.Errorf("并发 %d 次 Acquire 耗时 %v, 低于下限 %v", n, elapsed, minElapsed)
	}
}

// TestRetrierSucceedsAfterFailures 失败k次后成功,共尝试k+1次
func TestRetrierSucceedsAfterFailures(t *testing.T) {
	r := NewRetrier(3)
	r.sleep = func(time.Duration) {}

	attempts := 0
	err := r.Do(context.Background(), "测试操作", func() error {
		attempts++
		if attempts <= 2 {
			return errors.New("暂时失败")
		}
		return nil
	})

	if err != nil {
		t.Errorf("应在第3次成功, 实际返回错误: %v", err)
	}
	if attempts != 3 {
		t.Errorf("尝试次数 = %d, 期望3", attempts)
	}
}

// TestRetrierExhausted 持续失败时恰好尝试maxRetries次后返回最后错误
func TestRetrierExhausted(t *testing.T) {
	r := NewRetrier(3)
	r.sleep = func(time.Duration) {}

	attempts := 0
	finalErr := errors.New("永久失败")
	err := r.Do(context.Background(), "测试操作", func() error {
		attempts++
		return finalErr
	})

	if attempts != 3 {
		t.Errorf("尝试次数 = %d, 期望3", attempts)
	}
	if !errors.Is(err, finalErr) {
		t.Errorf("未返回最后一次的错误: %v", err)
	}
}

// TestRetrierDelaySchedule 延迟表按1s/2s/5s推进并在末值截断
func TestRetrierDelaySchedule(t *testing.T) {
	r := NewRetrier(5)
	var slept []time.Duration
	r.sleep = func(d time.Duration) { slept = append(slept, d) }

	_ = r.Do(context.Background(), "测试操作", func() error {
		return errors.New("失败")
	})

	expected := []time.Duration{time.Second, 2 * time.Second, 5 * time.Second, 5 * time.Second}
	if len(slept) != len(expected) {
		t.Fatalf("延迟次数 = %d, 期望 %d", len(slept), len(expected))
	}
	for i, d := range expected {
		if slept[i] != d {
			t.Errorf("第%d次延迟 = %v, 期望 %v", i+1, slept[i], d)
		}
	}
}

// TestRetrierContextCancel context取消时立即停止
func TestRetrierContextCancel(t *testing.T) {
	r := NewRetrier(5)
	r.sleep = func(time.Duration) {}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := r.Do(ctx, "测试操作", func() error {
		attempts++
		cancel()
		return errors.New("失败")
	})

	if !errors.Is(err, context.Canceled) && attempts > 2 {
		t.Errorf("取消后仍继续重试: 尝试=%d, err=%v", attempts, err)
	}
}

// TestRunBatchResultAlignment 结果与输入下标对齐,失败项不影响其他项
func TestRunBatchResultAlignment(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results := RunBatch(context.Background(), 2, items, func(_ context.Context, item int) (int, error) {
		if item == 3 {
			return 0, errors.New("第3项失败")
		}
		return item * 10, nil
	})

	if len(results) != len(items) {
		t.Fatalf("结果数量 = %d, 期望 %d", len(results), len(items))
	}
	for i, res := range results {
		if res.Index != i {
			t.Errorf("结果下标错位: results[%d].Index = %d", i, res.Index)
		}
		if items[i] == 3 {
			if res.Err == nil {
				t.Error("第3项应返回错误")
			}
			continue
		}
		if res.Err != nil {
			t.Errorf("第%d项意外失败: %v", i, res.Err)
		}
		if res.Value != items[i]*10 {
			t.Errorf("results[%d].Value = %d, 期望 %d", i, res.Value, items[i]*10)
		}
	}
}

// TestRunBatchConcurrencyBound 同时执行的任务数不超过worker上限
func TestRunBatchConcurrencyBound(t *testing.T) {
	const workers = 3
	var mu sync.Mutex
	active, peak := 0, 0

	items := make([]int, 20)
	RunBatch(context.Background(), workers, items, func(_ context.Context, _ int) (struct{}, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return struct{}{}, nil
	})

	if peak > workers {
		t.Errorf("并发峰值 = %d, 超过上限 %d", peak, workers)
	}
}

// TestRunBatchPanicIsolation 任务panic转为错误结果而非中止整批
func TestRunBatchPanicIsolation(t *testing.T) {
	items := []int{1, 2, 3}
	results := RunBatch(context.Background(), 2, items, func(_ context.Context, item int) (int, error) {
		if item == 2 {
			panic(fmt.Sprintf("任务%d崩溃", item))
		}
		return item, nil
	})

	if results[1].Err == nil {
		t.Error("panic的任务应产出错误结果")
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("panic影响了其他任务")
	}
}
