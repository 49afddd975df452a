package client

import (
	"context"
	"testing"
)

// TestAwaitCaptchaCleared 验证码等待: 通过返回true,超时未通过和ctx取消返回false
func TestAwaitCaptchaCleared(t *testing.T) {
	t.Run("第二次检查时已通过", func(t *testing.T) {
		checks := 0
		cleared := awaitCaptchaCleared(context.Background(), func() bool {
			checks++
			return checks < 2
		}, 3)
		if !cleared {
			t.Error("验证码已消失应返回true")
		}
		if checks != 2 {
			t.Errorf("检查次数 = %d, 期望2", checks)
		}
	})

	t.Run("超时仍未通过", func(t *testing.T) {
		cleared := awaitCaptchaCleared(context.Background(), func() bool { return true }, 1)
		if cleared {
			t.Error("验证码一直存在应返回false")
		}
	})

	t.Run("ctx取消立即退出", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		checks := 0
		cleared := awaitCaptchaCleared(ctx, func() bool {
			checks++
			return true
		}, 30)
		if cleared {
			t.Error("ctx取消应返回false")
		}
		if checks != 0 {
			t.Errorf("取消后不应再检查, 实际检查了 %d 次", checks)
		}
	})
}
