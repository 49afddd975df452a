package core

import (
	"context"
	"fmt"
	"regexp"

	"github.com/RecoveryAshes/dycrawl/internal/client"
	"github.com/RecoveryAshes/dycrawl/internal/control"
	"github.com/RecoveryAshes/dycrawl/internal/models"
	"github.com/RecoveryAshes/dycrawl/internal/storage"
	"github.com/RecoveryAshes/dycrawl/internal/utils"
)

var (
	secUIDRe  = regexp.MustCompile(`/user/([\w.-]+)`)
	awemeIDRe = regexp.MustCompile(`/(?:video|note)/(\d{15,20})`)
	mixIDRe   = regexp.MustCompile(`/(?:collection|mix)/(\d+)`)
	webRidRe  = regexp.MustCompile(`live\.douyin\.com/(\d+)`)
	musicIDRe = regexp.MustCompile(`/music/(\d+)`)
)

// RunnerOptions 单条链接处理的参数
type RunnerOptions struct {
	Fetch    FetchOptions
	Browser  client.BrowserFallbackOptions
	Download DownloaderOptions
}

// Runner 把一条输入链接跑完 识别→抓取→兜底→下载 全流程
type Runner struct {
	client     *client.Client
	fetcher    *Fetcher
	downloader *Downloader
	store      *storage.Store
	limiter    *control.RateLimiter
	retrier    *control.Retrier
	opts       RunnerOptions
}

// NewRunner 创建链接处理器
func NewRunner(c *client.Client, store *storage.Store, limiter *control.RateLimiter, retrier *control.Retrier, opts RunnerOptions) *Runner {
	return &Runner{
		client:     c,
		fetcher:    NewFetcher(limiter, retrier, store),
		downloader: NewDownloader(opts.Download, limiter, retrier),
		store:      store,
		limiter:    limiter,
		retrier:    retrier,
		opts:       opts,
	}
}

// Run 处理一条链接,返回该链接的报告与逐作品结果
func (r *Runner) Run(ctx context.Context, rawURL string) (models.LinkReport, []models.ItemOutcome) {
	report := models.LinkReport{URL: rawURL, Type: models.DetectLinkType(rawURL)}

	// 分享短链先展开成真实链接再识别
	if report.Type == models.LinkShort {
		resolved, err := r.client.ResolveShortURL(ctx, rawURL)
		if err != nil || resolved == "" {
			report.Error = fmt.Sprintf("短链解析失败: %v", err)
			return report, nil
		}
		utils.Infof("短链展开: %s -> %s", rawURL, resolved)
		rawURL = resolved
		report.Type = models.DetectLinkType(resolved)
	}

	var outcomes []models.ItemOutcome
	var err error
	switch report.Type {
	case models.LinkUser:
		report.Result, outcomes, err = r.runUser(ctx, rawURL)
	case models.LinkVideo, models.LinkNote:
		report.Result, outcomes, err = r.runSingle(ctx, rawURL)
	case models.LinkMix:
		report.Result, outcomes, err = r.runMix(ctx, rawURL)
	case models.LinkMusic:
		report.Result, outcomes, err = r.runMusic(ctx, rawURL)
	case models.LinkLive:
		err = r.runLive(ctx, rawURL)
	default:
		err = fmt.Errorf("无法识别的链接类型")
	}
	if err != nil {
		report.Error = err.Error()
		utils.Errorf("链接处理失败: %s, %v", rawURL, err)
	}

	if r.store != nil {
		if flushErr := r.store.Flush(); flushErr != nil {
			utils.Warnf("去重存储落盘失败: %v", flushErr)
		}
	}
	return report, outcomes
}

// runUser 抓取用户主页的全部作品并下载
func (r *Runner) runUser(ctx context.Context, rawURL string) (models.DownloadResult, []models.ItemOutcome, error) {
	secUID := firstMatch(secUIDRe, rawURL)
	if secUID == "" {
		return models.DownloadResult{}, nil, fmt.Errorf("链接中未找到sec_uid: %s", rawURL)
	}

	profile, err := control.DoWithResult(ctx, r.retrier, "获取用户信息", func() (*models.UserProfile, error) {
		r.limiter.Acquire()
		return r.client.GetUserInfo(ctx, secUID)
	})
	authorName := secUID
	expectedCount := 0
	if err != nil {
		utils.Warnf("获取用户信息失败,继续使用sec_uid作为目录名: %v", err)
	} else {
		authorName = profile.Nickname
		expectedCount = profile.AwemeCount
		utils.Infof("用户: %s, 主页作品数 %d", profile.Nickname, profile.AwemeCount)
	}

	fetchOpts := r.opts.Fetch
	fetchOpts.Scope = secUID

	pager := PagerFunc(func(ctx context.Context, cursor int64, count int) (*models.PostPage, error) {
		return r.client.GetUserPost(ctx, secUID, cursor, count)
	})
	fetch := r.fetcher.FetchAll(ctx, pager, fetchOpts)

	if fetch.NeedsFallback && expectedCount > len(fetch.Items) {
		utils.Warnf("API只产出 %d 个作品但主页显示 %d 个,转浏览器兜底", len(fetch.Items), expectedCount)
		fallback, fbErr := r.fallbackFetch(ctx, secUID, fetchOpts, fetch.Items)
		if fbErr != nil {
			utils.Warnf("浏览器兜底失败: %v", fbErr)
		}
		if len(fallback.Items) > 0 {
			fetch.Items = mergeFallbackItems(fetch.Items, fallback.Items)
		}
	}

	if len(fetch.Items) == 0 {
		utils.Infof("没有需要下载的作品 (终止原因: %s)", fetch.Reason)
		return models.DownloadResult{}, nil, fetch.Err
	}

	result, outcomes := r.downloader.DownloadAll(ctx, fetch.Items, authorName)
	return result, outcomes, nil
}

// fallbackFetch 浏览器兜底采集,只补抓API没拿到的作品
// DOM补充的id逐个补抓详情,API已持有的id直接跳过
func (r *Runner) fallbackFetch(ctx context.Context, secUID string, fetchOpts FetchOptions, have []models.Aweme) (models.FetchResult, error) {
	browserOpts := r.fallbackBrowserOptions(fetchOpts)

	collection, err := r.client.CollectUserPostIDsViaBrowser(ctx, secUID, browserOpts)
	if err != nil && len(collection.IDs) == 0 {
		return models.FetchResult{Reason: models.StopError, Err: err}, err
	}

	held := make(map[string]bool, len(have))
	for i := range have {
		held[have[i].AwemeID] = true
	}

	items := make([]models.Aweme, 0, len(collection.IDs))
	for _, id := range collection.IDs {
		if held[id] {
			continue
		}
		if item := collection.Items[id]; item != nil {
			items = append(items, *item)
			continue
		}
		// 仅DOM可见的id没有详情,限速逐个补抓;失败的静默丢弃
		item, detailErr := control.DoWithResult(ctx, r.retrier, "补抓作品详情", func() (*models.Aweme, error) {
			r.limiter.Acquire()
			return r.client.GetVideoDetail(ctx, id, true)
		})
		if detailErr != nil {
			utils.Debugf("DOM补充id %s 详情补抓失败,丢弃: %v", id, detailErr)
			continue
		}
		items = append(items, *item)
	}

	// 数量上限按并入API结果后的总数计算
	if fetchOpts.Limit > 0 {
		fetchOpts.Limit -= len(have)
		if fetchOpts.Limit <= 0 {
			return models.FetchResult{Reason: models.StopCountLimit}, nil
		}
	}

	result := r.fetcher.FilterItems(items, fetchOpts)
	utils.Infof("浏览器兜底补充 %d 个作品 (采集 %d, 过滤后 %d)", len(result.Items), len(collection.IDs), len(result.Items))
	return result, nil
}

// fallbackBrowserOptions 兜底浏览器参数
// 滚动停止目标取用户设定的数量上限;未设上限时为0,滚动靠连续无新增轮数停止
func (r *Runner) fallbackBrowserOptions(fetchOpts FetchOptions) client.BrowserFallbackOptions {
	browserOpts := r.opts.Browser
	browserOpts.ExpectedCount = fetchOpts.Limit
	return browserOpts
}

// mergeFallbackItems 把兜底采集的作品并入API结果,按aweme_id去重,API拿到的详情优先
func mergeFallbackItems(api, recovered []models.Aweme) []models.Aweme {
	merged := make([]models.Aweme, 0, len(api)+len(recovered))
	seen := make(map[string]bool, len(api)+len(recovered))
	for _, list := range [][]models.Aweme{api, recovered} {
		for i := range list {
			if seen[list[i].AwemeID] {
				continue
			}
			seen[list[i].AwemeID] = true
			merged = append(merged, list[i])
		}
	}
	return merged
}

// runSingle 下载单个视频或图文作品
func (r *Runner) runSingle(ctx context.Context, rawURL string) (models.DownloadResult, []models.ItemOutcome, error) {
	awemeID := firstMatch(awemeIDRe, rawURL)
	if awemeID == "" {
		return models.DownloadResult{}, nil, fmt.Errorf("链接中未找到作品id: %s", rawURL)
	}

	item, err := control.DoWithResult(ctx, r.retrier, "获取作品详情", func() (*models.Aweme, error) {
		r.limiter.Acquire()
		return r.client.GetVideoDetail(ctx, awemeID, false)
	})
	if err != nil {
		return models.DownloadResult{}, nil, err
	}

	authorName := awemeID
	if item.Author != nil && item.Author.Nickname != "" {
		authorName = item.Author.Nickname
	}
	result, outcomes := r.downloader.DownloadAll(ctx, []models.Aweme{*item}, authorName)
	return result, outcomes, nil
}

// runMix 抓取合集并下载
func (r *Runner) runMix(ctx context.Context, rawURL string) (models.DownloadResult, []models.ItemOutcome, error) {
	mixID := firstMatch(mixIDRe, rawURL)
	if mixID == "" {
		return models.DownloadResult{}, nil, fmt.Errorf("链接中未找到合集id: %s", rawURL)
	}

	fetchOpts := r.opts.Fetch
	fetchOpts.Scope = "mix_" + mixID

	pager := PagerFunc(func(ctx context.Context, cursor int64, count int) (*models.PostPage, error) {
		return r.client.GetUserMix(ctx, mixID, cursor, count)
	})
	fetch := r.fetcher.FetchAll(ctx, pager, fetchOpts)
	if len(fetch.Items) == 0 {
		return models.DownloadResult{}, nil, fetch.Err
	}

	result, outcomes := r.downloader.DownloadAll(ctx, fetch.Items, "合集_"+mixID)
	return result, outcomes, nil
}

// runMusic 抓取音乐关联作品并下载
func (r *Runner) runMusic(ctx context.Context, rawURL string) (models.DownloadResult, []models.ItemOutcome, error) {
	musicID := firstMatch(musicIDRe, rawURL)
	if musicID == "" {
		return models.DownloadResult{}, nil, fmt.Errorf("链接中未找到音乐id: %s", rawURL)
	}

	fetchOpts := r.opts.Fetch
	fetchOpts.Scope = "music_" + musicID

	pager := PagerFunc(func(ctx context.Context, cursor int64, count int) (*models.PostPage, error) {
		return r.client.GetUserMusic(ctx, musicID, cursor, count)
	})
	fetch := r.fetcher.FetchAll(ctx, pager, fetchOpts)
	if len(fetch.Items) == 0 {
		return models.DownloadResult{}, nil, fetch.Err
	}

	result, outcomes := r.downloader.DownloadAll(ctx, fetch.Items, "音乐_"+musicID)
	return result, outcomes, nil
}

// runLive 查询直播间状态,直播流本身不落盘,只报告拉流地址
func (r *Runner) runLive(ctx context.Context, rawURL string) error {
	webRid := firstMatch(webRidRe, rawURL)
	if webRid == "" {
		return fmt.Errorf("链接中未找到直播间id: %s", rawURL)
	}

	room, err := control.DoWithResult(ctx, r.retrier, "获取直播间信息", func() (*models.LiveRoom, error) {
		r.limiter.Acquire()
		return r.client.GetLiveRoom(ctx, webRid)
	})
	if err != nil {
		return err
	}

	if !room.Live() {
		utils.Infof("直播间 %s 当前未开播: %s", webRid, room.Title)
		return nil
	}
	utils.Infof("🔴 直播中: %s (%s)", room.Title, room.Owner)
	utils.Infof("HLS拉流地址: %s", room.HLSURL)
	return nil
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
