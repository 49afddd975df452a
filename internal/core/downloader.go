package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/dycrawl/internal/control"
	"github.com/RecoveryAshes/dycrawl/internal/models"
	"github.com/RecoveryAshes/dycrawl/internal/utils"
)

// DownloaderOptions 资源下载器配置
type DownloaderOptions struct {
	SaveDir      string
	Workers      int  // 期望并发数,实际受资源守卫限制
	WithCover    bool // 同时保存封面图
	WithMusic    bool // 同时保存背景音乐
	WithMetadata bool // 同时保存作品元数据JSON
	UserAgent    string
	Client       *http.Client // nil时使用默认60秒超时客户端
}

// Downloader 作品资源下载器
// 视频选最高可用画质,图集逐张保存,已存在的文件跳过
type Downloader struct {
	opts    DownloaderOptions
	http    *http.Client
	limiter *control.RateLimiter
	retrier *control.Retrier
	guard   *control.ResourceGuard
}

// NewDownloader 创建下载器
func NewDownloader(opts DownloaderOptions, limiter *control.RateLimiter, retrier *control.Retrier) *Downloader {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Downloader{
		opts:    opts,
		http:    client,
		limiter: limiter,
		retrier: retrier,
		guard:   control.NewResourceGuard(),
	}
}

// DownloadAll 并发下载一批作品,返回汇总与逐作品结果
func (d *Downloader) DownloadAll(ctx context.Context, items []models.Aweme, authorName string) (models.DownloadResult, []models.ItemOutcome) {
	result := models.DownloadResult{Total: len(items)}
	if len(items) == 0 {
		return result, nil
	}

	workers := d.guard.CapWorkers(d.opts.Workers)
	utils.Infof("📥 开始下载 %d 个作品, 并发数 %d", len(items), workers)

	bar := utils.NewProgressBar(len(items), "下载作品")
	batch := control.RunBatch(ctx, workers, items, func(ctx context.Context, item models.Aweme) (models.ItemOutcome, error) {
		outcome := d.downloadItem(ctx, &item, authorName)
		bar.Add(1)
		return outcome, nil
	})
	fmt.Println()

	outcomes := make([]models.ItemOutcome, 0, len(batch))
	for _, r := range batch {
		outcome := r.Value
		if r.Err != nil {
			outcome.Status = "failed"
			outcome.Err = r.Err.Error()
		}
		switch outcome.Status {
		case "success":
			result.Success++
		case "skipped":
			result.Skipped++
		default:
			result.Failed++
		}
		outcomes = append(outcomes, outcome)
	}

	utils.Infof("✨ 下载完成: 成功 %d, 跳过 %d, 失败 %d", result.Success, result.Skipped, result.Failed)
	return result, outcomes
}

// downloadItem 下载单个作品及其附属资源
func (d *Downloader) downloadItem(ctx context.Context, item *models.Aweme, authorName string) models.ItemOutcome {
	outcome := models.ItemOutcome{AwemeID: item.AwemeID, Title: item.Desc}

	dir := filepath.Join(d.opts.SaveDir, utils.SanitizeFilename(authorName))
	if err := os.MkdirAll(dir, 0755); err != nil {
		outcome.Status = "failed"
		outcome.Err = fmt.Sprintf("创建保存目录失败: %v", err)
		return outcome
	}
	base := itemBaseName(item)

	var mainErr error
	skipped := false
	switch item.Type() {
	case models.AwemeImage:
		skipped, mainErr = d.downloadImages(ctx, item, dir, base)
	default:
		skipped, mainErr = d.downloadVideo(ctx, item, dir, base)
		outcome.Path = filepath.Join(dir, base+".mp4")
	}
	if mainErr != nil {
		utils.Errorf("作品 %s 下载失败: %v", item.AwemeID, mainErr)
		outcome.Status = "failed"
		outcome.Err = mainErr.Error()
		return outcome
	}

	// 附属资源失败不影响作品本身的结果
	d.downloadSidecars(ctx, item, dir, base)

	if skipped {
		outcome.Status = "skipped"
	} else {
		outcome.Status = "success"
	}
	return outcome
}

// downloadVideo 下载视频主体,文件已存在时跳过
func (d *Downloader) downloadVideo(ctx context.Context, item *models.Aweme, dir, base string) (skipped bool, err error) {
	videoURL := SelectVideoURL(item.Video)
	if videoURL == "" {
		return false, fmt.Errorf("作品 %s 没有可用的视频地址", item.AwemeID)
	}
	videoURL = RewriteNoWatermark(videoURL)

	target := filepath.Join(dir, base+".mp4")
	if fileExists(target) {
		utils.Debugf("文件已存在,跳过: %s", target)
		return true, nil
	}
	return false, d.fetchToFile(ctx, videoURL, target)
}

// downloadImages 下载图集的全部图片,全部已存在才算跳过
func (d *Downloader) downloadImages(ctx context.Context, item *models.Aweme, dir, base string) (skipped bool, err error) {
	if len(item.Images) == 0 {
		return false, fmt.Errorf("作品 %s 图集为空", item.AwemeID)
	}
	allExisted := true
	for i, img := range item.Images {
		if len(img.URLList) == 0 {
			continue
		}
		target := filepath.Join(dir, fmt.Sprintf("%s_%02d.jpg", base, i+1))
		if fileExists(target) {
			continue
		}
		allExisted = false
		if err := d.fetchToFile(ctx, img.URLList[0], target); err != nil {
			return false, fmt.Errorf("图集第 %d 张下载失败: %w", i+1, err)
		}
	}
	return allExisted, nil
}

// downloadSidecars 保存封面、背景音乐与元数据JSON
func (d *Downloader) downloadSidecars(ctx context.Context, item *models.Aweme, dir, base string) {
	if d.opts.WithCover && item.Video != nil {
		coverURL := item.Video.OriginCover.First()
		if coverURL == "" {
			coverURL = item.Video.Cover.First()
		}
		if coverURL != "" {
			target := filepath.Join(dir, base+"_cover.jpg")
			if !fileExists(target) {
				if err := d.fetchToFile(ctx, coverURL, target); err != nil {
					utils.Warnf("封面下载失败: %s, %v", item.AwemeID, err)
				}
			}
		}
	}

	if d.opts.WithMusic && item.Music != nil {
		if musicURL := item.Music.PlayURL.First(); musicURL != "" {
			target := filepath.Join(dir, base+"_music.mp3")
			if !fileExists(target) {
				if err := d.fetchToFile(ctx, musicURL, target); err != nil {
					utils.Warnf("背景音乐下载失败: %s, %v", item.AwemeID, err)
				}
			}
		}
	}

	if d.opts.WithMetadata {
		target := filepath.Join(dir, base+".json")
		data, err := json.MarshalIndent(item, "", "  ")
		if err == nil {
			err = os.WriteFile(target, data, 0644)
		}
		if err != nil {
			utils.Warnf("元数据保存失败: %s, %v", item.AwemeID, err)
		}
	}
}

// fetchToFile 限速重试下载到临时文件后改名,避免留下半截文件
func (d *Downloader) fetchToFile(ctx context.Context, rawURL, target string) error {
	return d.retrier.Do(ctx, "下载 "+filepath.Base(target), func() error {
		d.limiter.Acquire()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		if d.opts.UserAgent != "" {
			req.Header.Set("User-Agent", d.opts.UserAgent)
		}
		req.Header.Set("Referer", "https://www.douyin.com/")

		resp, err := d.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("下载返回 HTTP %d", resp.StatusCode)
		}

		tmp := target + ".tmp"
		f, err := os.Create(tmp)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, resp.Body); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
		if err := f.Close(); err != nil {
			os.Remove(tmp)
			return err
		}
		return os.Rename(tmp, target)
	})
}

// SelectVideoURL 按画质优先级选择视频地址
// H264地址兼容性最好优先,然后是标准播放地址、下载地址,最后从码率列表里挑最高的
func SelectVideoURL(v *models.Video) string {
	if v == nil {
		return ""
	}
	if u := v.PlayAddrH264.First(); u != "" {
		return u
	}
	if u := v.PlayAddr.First(); u != "" {
		return u
	}
	if u := v.DownloadAddr.First(); u != "" {
		return u
	}
	var best string
	var bestRate int64 = -1
	for _, br := range v.BitRateList {
		if u := br.PlayAddr.First(); u != "" && br.BitRate > bestRate {
			best = u
			bestRate = br.BitRate
		}
	}
	return best
}

// RewriteNoWatermark 把带水印的playwm地址改写为无水印的play地址
func RewriteNoWatermark(rawURL string) string {
	return strings.Replace(rawURL, "/playwm/", "/play/", 1)
}

// itemBaseName 作品文件基础名: 日期_标题_id
func itemBaseName(item *models.Aweme) string {
	title := "无标题"
	if strings.TrimSpace(item.Desc) != "" {
		title = utils.SanitizeFilename(item.Desc)
	}
	return fmt.Sprintf("%s_%s_%s", item.CreateDate(), title, item.AwemeID)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
