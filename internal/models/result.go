package models

import (
	"encoding/json"
	"time"
)

// StopReason 分页循环的终止原因
type StopReason string

const (
	StopExhausted   StopReason = "exhausted"   // has_more=false 自然翻完
	StopCountLimit  StopReason = "count_limit" // 达到数量上限
	StopIncremental StopReason = "incremental" // 增量模式遇到已下载作品
	StopError       StopReason = "error"       // 重试耗尽后的页面获取失败
)

// FetchResult 一次分页抓取的结果
type FetchResult struct {
	Items      []Aweme    `json:"items"`
	Reason     StopReason `json:"reason"`
	PagesTried int        `json:"pages_tried"`
	Err        error      `json:"-"`

	// NeedsFallback API连续拉空或失败,建议转浏览器兜底采集
	NeedsFallback bool `json:"-"`
}

// DownloadResult 单个资源处理后的汇总
type DownloadResult struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Merge 累加另一份结果
func (r *DownloadResult) Merge(other DownloadResult) {
	r.Total += other.Total
	r.Success += other.Success
	r.Failed += other.Failed
	r.Skipped += other.Skipped
}

// ItemOutcome 单个作品的处理结果,供进度上报使用
type ItemOutcome struct {
	AwemeID string `json:"aweme_id"`
	Title   string `json:"title"`
	Status  string `json:"status"` // success / failed / skipped
	Path    string `json:"path,omitempty"`
	Err     string `json:"error,omitempty"`
}

// RunReport 一次运行的最终报告
type RunReport struct {
	ID          string           `json:"id"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
	Links       []LinkReport     `json:"links"`
	Totals      DownloadResult   `json:"totals"`
	Outcomes    []ItemOutcome    `json:"outcomes,omitempty"`
}

// LinkReport 批量模式下单条链接的报告
type LinkReport struct {
	URL    string         `json:"url"`
	Type   LinkType       `json:"type"`
	Result DownloadResult `json:"result"`
	Error  string         `json:"error,omitempty"`
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
