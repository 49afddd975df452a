package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RecoveryAshes/dycrawl/internal/auth"
	"github.com/RecoveryAshes/dycrawl/internal/client"
	"github.com/RecoveryAshes/dycrawl/internal/config"
	"github.com/RecoveryAshes/dycrawl/internal/control"
	"github.com/RecoveryAshes/dycrawl/internal/core"
	"github.com/RecoveryAshes/dycrawl/internal/models"
	"github.com/RecoveryAshes/dycrawl/internal/storage"
	"github.com/RecoveryAshes/dycrawl/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// 认证参数
	cookie string
	proxy  string

	// 抓取参数
	targetURL   string
	linkFile    string
	number      int
	startDate   string
	endDate     string
	incremental bool

	// 下载参数
	savePath     string
	threads      int
	retries      int
	withCover    bool
	withMusic    bool
	withMetadata bool

	// 浏览器兜底参数
	headless bool

	// 批量处理参数
	linkDelay int
)

var rootCmd = &cobra.Command{
	Use:   "dycrawl",
	Short: "抖音作品批量抓取和下载工具",
	Long: `dycrawl - 抖音作品抓取下载工具 (Go版本)

支持以下链接类型的抓取与下载:
  • 用户主页 (全部作品/增量更新)
  • 单个视频、图文作品
  • 合集、音乐关联作品
  • v.douyin.com 分享短链

核心能力:
  • 请求自动签名 (a_bogus / X-Bogus 双算法降级)
  • msToken 会话自动维护
  • API拉空时浏览器兜底采集
  • 时间窗口过滤、数量上限、增量去重
  • 批量链接处理与运行报告

使用示例:
  # 抓取用户主页全部作品
  dycrawl -u "https://www.douyin.com/user/MS4wLjABxxxx" --cookie "..."

  # 增量更新,只抓上次之后发布的
  dycrawl -u "https://www.douyin.com/user/MS4wLjABxxxx" --incremental

  # 批量处理链接文件
  dycrawl -f links.txt --number 10

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		logConfig := utils.LogConfig{
			Level:      cfg.Logging.Level,
			LogDir:     cfg.Logging.LogDir,
			MaxSize:    cfg.Logging.Rotation.MaxSize,
			MaxBackups: cfg.Logging.Rotation.MaxBackups,
			MaxAge:     cfg.Logging.Rotation.MaxAge,
			Compress:   cfg.Logging.Rotation.Compress,
		}

		// 命令行参数覆盖配置文件
		if logLevel != "" {
			logConfig.Level = logLevel
		}
		if verbose {
			logConfig.Level = "debug"
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		cfg.MergeCLIFlags(cookie, proxy, savePath, startDate, endDate, number, threads, retries, incremental, headless)
		if cmd.Flags().Changed("with-cover") {
			cfg.Download.WithCover = withCover
		}
		if cmd.Flags().Changed("with-music") {
			cfg.Download.WithMusic = withMusic
		}
		if cmd.Flags().Changed("with-metadata") {
			cfg.Download.WithMetadata = withMetadata
		}
		if cmd.Flags().Changed("link-delay") {
			cfg.Fetch.LinkDelaySec = linkDelay
		}

		// 没有提供任何目标,显示帮助信息
		if targetURL == "" && linkFile == "" {
			return cmd.Help()
		}

		if err := ValidateFlags(targetURL, cfg); err != nil {
			return err
		}

		// 收集要处理的链接
		links, err := collectLinks(targetURL, linkFile)
		if err != nil {
			return err
		}

		// 信号处理,Ctrl+C优雅退出
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-sigChan
			utils.Warnf("收到中断信号: %v, 正在优雅关闭...", sig)
			cancel()
		}()

		runner, store, err := buildRunner(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if store != nil {
				if err := store.Flush(); err != nil {
					utils.Warnf("去重存储落盘失败: %v", err)
				}
			}
		}()

		report := runner.RunBatch(ctx, links, core.BatchOptions{
			LinkDelay: time.Duration(cfg.Fetch.LinkDelaySec) * time.Second,
		})

		// 保存运行报告
		if data, err := report.ToJSON(); err == nil {
			reporter := utils.NewReporter(cfg.Download.SavePath)
			if _, err := reporter.SaveReport(report.ID, data); err != nil {
				utils.Warnf("保存运行报告失败: %v", err)
			}
		}

		printSummary(report)
		return nil
	},
}

// buildRunner 按配置组装客户端、去重存储与链接处理器
func buildRunner(cfg *config.Config) (*core.Runner, *storage.Store, error) {
	cookies := auth.ParseCookieHeader(cfg.Auth.Cookie)
	if len(cookies) == 0 {
		utils.Warn("未提供Cookie,接口可能被风控拦截")
	}

	apiClient, err := client.New(client.Options{
		Cookies: cookies,
		Proxy:   cfg.Auth.Proxy,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("创建API客户端失败: %w", err)
	}

	store, err := storage.Open(cfg.Fetch.StorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("打开去重存储失败: %w", err)
	}

	limiter := control.NewRateLimiter(cfg.Fetch.RateLimit)
	retrier := control.NewRetrier(cfg.Fetch.Retries)

	runner := core.NewRunner(apiClient, store, limiter, retrier, core.RunnerOptions{
		Fetch: core.FetchOptions{
			Limit:       cfg.Fetch.Number,
			StartDate:   cfg.Fetch.StartDate,
			EndDate:     cfg.Fetch.EndDate,
			Incremental: cfg.Fetch.Incremental,
		},
		Browser: client.BrowserFallbackOptions{
			Headless:    cfg.Browser.Headless,
			MaxScrolls:  cfg.Browser.MaxScrolls,
			IdleRounds:  cfg.Browser.IdleRounds,
			WaitTimeout: cfg.Browser.WaitTimeout,
			Proxy:       cfg.Auth.Proxy,
		},
		Download: core.DownloaderOptions{
			SaveDir:      cfg.Download.SavePath,
			Workers:      cfg.Download.Threads,
			WithCover:    cfg.Download.WithCover,
			WithMusic:    cfg.Download.WithMusic,
			WithMetadata: cfg.Download.WithMetadata,
		},
	})
	return runner, store, nil
}

// collectLinks 从命令行与链接文件收集待处理链接
func collectLinks(targetURL, linkFile string) ([]string, error) {
	var links []string
	if targetURL != "" {
		if extracted := utils.ExtractURL(targetURL); extracted != "" {
			links = append(links, extracted)
		} else {
			links = append(links, targetURL)
		}
	}
	if linkFile != "" {
		fromFile, err := utils.ReadLinksFromFile(linkFile)
		if err != nil {
			return nil, fmt.Errorf("读取链接文件失败: %w", err)
		}
		links = append(links, fromFile...)
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("没有可处理的链接")
	}
	return links, nil
}

// printSummary 打印运行统计
func printSummary(report *models.RunReport) {
	fmt.Println("\n==================================================")
	fmt.Println("📊 运行统计")
	fmt.Println("==================================================")
	fmt.Printf("🔗 处理链接数: %d\n", len(report.Links))
	fmt.Printf("✅ 下载成功: %d\n", report.Totals.Success)
	fmt.Printf("⏭️  跳过(已存在): %d\n", report.Totals.Skipped)
	fmt.Printf("❌ 下载失败: %d\n", report.Totals.Failed)
	fmt.Printf("⏱️  总耗时: %.1f秒\n", report.CompletedAt.Sub(report.StartedAt).Seconds())
	fmt.Println("==================================================")

	for _, link := range report.Links {
		if link.Error != "" {
			fmt.Printf("⚠️  %s: %s\n", link.URL, link.Error)
		}
	}
	utils.Info("✨ 任务完成!")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dycrawl %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
		fmt.Println("Go实现版本 - 抖音作品抓取下载工具")
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// 认证参数
	rootCmd.Flags().StringVar(&cookie, "cookie", "", "浏览器导出的Cookie串")
	rootCmd.Flags().StringVar(&proxy, "proxy", "", "代理地址 (socks5:// 或 http://)")

	// 抓取参数
	rootCmd.Flags().StringVarP(&targetURL, "url", "u", "", "目标链接,支持分享文案 (必需,除非使用 --link-file)")
	rootCmd.Flags().StringVarP(&linkFile, "link-file", "f", "", "包含链接列表的文件路径")
	rootCmd.Flags().IntVarP(&number, "number", "n", 0, "作品数量上限 (0为不限)")
	rootCmd.Flags().StringVar(&startDate, "start-date", "", "时间窗口起点 (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&endDate, "end-date", "", "时间窗口终点 (YYYY-MM-DD 或 now)")
	rootCmd.Flags().BoolVar(&incremental, "incremental", false, "增量模式,只抓上次之后的新作品")

	// 下载参数
	rootCmd.Flags().StringVarP(&savePath, "output", "o", "", "保存目录")
	rootCmd.Flags().IntVar(&threads, "threads", 0, "下载并发数")
	rootCmd.Flags().IntVar(&retries, "retries", 0, "单请求最大尝试次数")
	rootCmd.Flags().BoolVar(&withCover, "with-cover", false, "同时保存封面图")
	rootCmd.Flags().BoolVar(&withMusic, "with-music", false, "同时保存背景音乐")
	rootCmd.Flags().BoolVar(&withMetadata, "with-metadata", true, "同时保存作品元数据JSON")

	// 浏览器兜底参数
	rootCmd.Flags().BoolVar(&headless, "headless", false, "兜底浏览器使用无头模式 (无头遇验证码会放弃)")

	// 批量处理参数
	rootCmd.Flags().IntVar(&linkDelay, "link-delay", 2, "批量处理链接间延迟(秒)")

	// 添加子命令
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
