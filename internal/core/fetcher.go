package core

import (
	"context"
	"time"

	"github.com/RecoveryAshes/dycrawl/internal/control"
	"github.com/RecoveryAshes/dycrawl/internal/models"
	"github.com/RecoveryAshes/dycrawl/internal/storage"
	"github.com/RecoveryAshes/dycrawl/internal/utils"
)

// fallbackEmptyThreshold 连续多少个空页后放弃API翻页转浏览器兜底
const fallbackEmptyThreshold = 3

// defaultPageSize 单页请求的作品数
const defaultPageSize = 20

// Pager 按游标翻页的作品来源
// 用户主页、合集、音乐作品列表都实现这一接口
type Pager interface {
	FetchPage(ctx context.Context, cursor int64, count int) (*models.PostPage, error)
}

// PagerFunc 函数式Pager适配器
type PagerFunc func(ctx context.Context, cursor int64, count int) (*models.PostPage, error)

// FetchPage 实现Pager
func (f PagerFunc) FetchPage(ctx context.Context, cursor int64, count int) (*models.PostPage, error) {
	return f(ctx, cursor, count)
}

// FetchOptions 一次分页抓取的参数
type FetchOptions struct {
	Scope       string // 去重分桶键,通常是sec_uid或合集id
	PageSize    int    // 单页数量,0取默认20
	Limit       int    // 作品数量上限,0为不限
	StartDate   string // 时间窗口起点 YYYY-MM-DD,含当天;空为不限
	EndDate     string // 时间窗口终点 YYYY-MM-DD,含当天;空为不限,"now"为今天
	Incremental bool   // 增量模式,遇到已抓取的非置顶作品即停止
}

// Fetcher 分页抓取引擎
// 每页经过 获取→时间过滤→增量判定→入列→翻页 的固定流程,
// 全部页面请求走同一个限速器和重试器
type Fetcher struct {
	limiter *control.RateLimiter
	retrier *control.Retrier
	store   *storage.Store // nil时增量判定直接跳过

	now func() time.Time
}

// NewFetcher 创建抓取引擎
func NewFetcher(limiter *control.RateLimiter, retrier *control.Retrier, store *storage.Store) *Fetcher {
	return &Fetcher{
		limiter: limiter,
		retrier: retrier,
		store:   store,
		now:     time.Now,
	}
}

// FetchAll 翻页抓到终止条件为止,返回过滤后的作品与终止原因
// 部分成功时已抓到的作品保留在结果里
func (f *Fetcher) FetchAll(ctx context.Context, pager Pager, opts FetchOptions) models.FetchResult {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	startDate, endDate := f.resolveWindow(opts.StartDate, opts.EndDate)

	result := models.FetchResult{Reason: models.StopExhausted}
	cursor := int64(0)
	emptyStreak := 0

	for {
		page, err := control.DoWithResult(ctx, f.retrier, "拉取作品列表页", func() (*models.PostPage, error) {
			f.limiter.Acquire()
			return pager.FetchPage(ctx, cursor, pageSize)
		})
		result.PagesTried++
		if err != nil {
			utils.Errorf("作品列表页获取失败: scope=%s, cursor=%d, %v", opts.Scope, cursor, err)
			result.Reason = models.StopError
			result.Err = err
			result.NeedsFallback = true
			return result
		}

		if len(page.AwemeList) == 0 {
			emptyStreak++
		} else {
			emptyStreak = 0
		}

		if stopped := f.admitItems(&result, page.AwemeList, opts, startDate, endDate); stopped {
			return result
		}

		if emptyStreak >= fallbackEmptyThreshold {
			utils.Warnf("连续 %d 页为空: scope=%s,建议转浏览器兜底", emptyStreak, opts.Scope)
			result.Reason = models.StopExhausted
			result.NeedsFallback = true
			return result
		}

		if !page.More() {
			result.Reason = models.StopExhausted
			// 正常翻完的末页带着作品;列表在空页上结束往往是风控静默拦截
			if len(page.AwemeList) == 0 {
				utils.Warnf("列表在空页上结束: scope=%s,疑似风控拦截,建议转浏览器兜底", opts.Scope)
				result.NeedsFallback = true
			}
			return result
		}
		cursor = page.NextCursor()
	}
}

// FilterItems 对现成的作品列表执行与翻页相同的 过滤→增量→上限 流程
// 浏览器兜底采集拿到的作品走这里,保证两条路径的筛选规则一致
func (f *Fetcher) FilterItems(items []models.Aweme, opts FetchOptions) models.FetchResult {
	startDate, endDate := f.resolveWindow(opts.StartDate, opts.EndDate)
	result := models.FetchResult{Reason: models.StopExhausted}
	f.admitItems(&result, items, opts, startDate, endDate)
	return result
}

// admitItems 逐作品执行 时间过滤→增量判定→入列→数量上限 流程
// 返回true表示触发了终止条件,result.Reason已设置
func (f *Fetcher) admitItems(result *models.FetchResult, items []models.Aweme, opts FetchOptions, startDate, endDate string) bool {
	for i := range items {
		item := &items[i]

		if !withinWindow(item, startDate, endDate) {
			utils.Debugf("作品 %s 不在时间窗口 [%s, %s] 内,跳过", item.AwemeID, startDate, endDate)
			continue
		}

		if opts.Incremental && f.store != nil && f.store.IsSeen(opts.Scope, item.AwemeID) {
			if item.Pinned() {
				// 置顶作品永远排在最前面,不能作为增量停止信号
				utils.Debugf("置顶作品 %s 已抓取过,跳过继续", item.AwemeID)
				continue
			}
			utils.Infof("遇到已抓取作品 %s,增量模式停止翻页", item.AwemeID)
			result.Reason = models.StopIncremental
			return true
		}

		result.Items = append(result.Items, *item)
		if f.store != nil {
			f.store.RecordSeen(opts.Scope, item)
		}

		if opts.Limit > 0 && len(result.Items) >= opts.Limit {
			utils.Infof("已达到数量上限 %d,停止翻页", opts.Limit)
			result.Reason = models.StopCountLimit
			return true
		}
	}
	return false
}

// resolveWindow 解析时间窗口,空取开放边界,"now"取今天
func (f *Fetcher) resolveWindow(start, end string) (string, string) {
	today := f.now().Format("2006-01-02")
	if start == "" {
		start = "1970-01-01"
	} else if start == "now" {
		start = today
	}
	if end == "" {
		end = "2099-12-31"
	} else if end == "now" {
		end = today
	}
	return start, end
}

// withinWindow 创建日期是否落在[start, end]闭区间
// YYYY-MM-DD 的字典序与日期序一致,直接字符串比较
func withinWindow(item *models.Aweme, start, end string) bool {
	date := item.CreateDate()
	return date >= start && date <= end
}
