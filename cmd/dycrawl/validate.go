package main

import (
	"fmt"
	"regexp"

	"github.com/RecoveryAshes/dycrawl/internal/config"
	"github.com/RecoveryAshes/dycrawl/internal/utils"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidateFlags 验证命令行标志与合并后的配置
func ValidateFlags(targetURL string, cfg *config.Config) error {
	if targetURL != "" {
		candidate := utils.ExtractURL(targetURL)
		if candidate == "" {
			candidate = targetURL
		}
		if err := utils.ValidateURL(candidate); err != nil {
			return fmt.Errorf("无效的目标链接: %w", err)
		}
	}

	if err := validateDate("start-date", cfg.Fetch.StartDate); err != nil {
		return err
	}
	if err := validateDate("end-date", cfg.Fetch.EndDate); err != nil {
		return err
	}

	if cfg.Fetch.Number < 0 {
		return fmt.Errorf("作品数量上限不能为负数,当前值: %d", cfg.Fetch.Number)
	}
	if cfg.Download.Threads < 1 || cfg.Download.Threads > 100 {
		return fmt.Errorf("下载并发数必须在1-100之间,当前值: %d", cfg.Download.Threads)
	}
	if cfg.Fetch.Retries < 1 || cfg.Fetch.Retries > 10 {
		return fmt.Errorf("重试次数必须在1-10之间,当前值: %d", cfg.Fetch.Retries)
	}
	if cfg.Fetch.RateLimit <= 0 {
		return fmt.Errorf("请求速率必须大于0,当前值: %.2f", cfg.Fetch.RateLimit)
	}
	return nil
}

// validateDate 验证日期参数,空与"now"都合法
func validateDate(name, value string) error {
	if value == "" || value == "now" {
		return nil
	}
	if !dateRe.MatchString(value) {
		return fmt.Errorf("%s 格式错误: %s (期望 YYYY-MM-DD 或 now)", name, value)
	}
	return nil
}
