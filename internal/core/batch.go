package core

import (
	"context"
	"time"

	"github.com/RecoveryAshes/dycrawl/internal/models"
	"github.com/RecoveryAshes/dycrawl/internal/utils"
	"github.com/google/uuid"
)

// BatchOptions 批量模式配置
type BatchOptions struct {
	LinkDelay time.Duration // 相邻链接之间的间隔,0为不间隔
}

// RunBatch 依次处理一批链接,单条失败不影响后续
// 返回带运行id的完整报告
func (r *Runner) RunBatch(ctx context.Context, links []string, opts BatchOptions) *models.RunReport {
	report := &models.RunReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
	utils.Infof("🚀 批量任务启动: %d 条链接, 运行id %s", len(links), report.ID)

	for i, link := range links {
		if ctx.Err() != nil {
			utils.Warnf("批量任务被取消, 已处理 %d/%d 条", i, len(links))
			break
		}
		utils.Infof("—— [%d/%d] %s", i+1, len(links), link)

		linkReport, outcomes := r.Run(ctx, link)
		report.Links = append(report.Links, linkReport)
		report.Totals.Merge(linkReport.Result)
		report.Outcomes = append(report.Outcomes, outcomes...)

		if opts.LinkDelay > 0 && i < len(links)-1 {
			if !sleepBatch(ctx, opts.LinkDelay) {
				break
			}
		}
	}

	report.CompletedAt = time.Now()
	utils.Infof("✨ 批量任务完成: 成功 %d, 跳过 %d, 失败 %d, 耗时 %s",
		report.Totals.Success, report.Totals.Skipped, report.Totals.Failed,
		report.CompletedAt.Sub(report.StartedAt).Round(time.Second))
	return report
}

func sleepBatch(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
