package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Auth     AuthConfig     `mapstructure:"auth"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Download DownloadConfig `mapstructure:"download"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	Cookie string `mapstructure:"cookie"` // 浏览器导出的Cookie串
	Proxy  string `mapstructure:"proxy"`  // socks5:// 或 http:// 代理
}

// FetchConfig 抓取配置
type FetchConfig struct {
	Number       int     `mapstructure:"number"`         // 作品数量上限,0为不限
	StartDate    string  `mapstructure:"start_date"`     // 时间窗口起点 YYYY-MM-DD
	EndDate      string  `mapstructure:"end_date"`       // 时间窗口终点 YYYY-MM-DD 或 now
	Incremental  bool    `mapstructure:"incremental"`    // 增量模式
	RateLimit    float64 `mapstructure:"rate_limit"`     // 每秒API请求数
	Retries      int     `mapstructure:"retries"`        // 单请求最大尝试次数
	StorePath    string  `mapstructure:"store_path"`     // 去重存储文件
	LinkDelaySec int     `mapstructure:"link_delay_sec"` // 批量模式相邻链接间隔秒数
}

// DownloadConfig 下载配置
type DownloadConfig struct {
	SavePath     string `mapstructure:"save_path"`
	Threads      int    `mapstructure:"threads"`
	WithCover    bool   `mapstructure:"with_cover"`
	WithMusic    bool   `mapstructure:"with_music"`
	WithMetadata bool   `mapstructure:"with_metadata"`
}

// BrowserConfig 浏览器兜底配置
type BrowserConfig struct {
	Headless    bool `mapstructure:"headless"`
	MaxScrolls  int  `mapstructure:"max_scrolls"`
	IdleRounds  int  `mapstructure:"idle_rounds"`
	WaitTimeout int  `mapstructure:"wait_timeout"` // 验证码人工处理等待秒数
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		// 使用指定的配置文件
		v.SetConfigFile(configPath)
	} else {
		// 搜索默认位置
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".dycrawl"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("auth.cookie", "")
	v.SetDefault("auth.proxy", "")

	v.SetDefault("fetch.number", 0)
	v.SetDefault("fetch.start_date", "")
	v.SetDefault("fetch.end_date", "")
	v.SetDefault("fetch.incremental", false)
	v.SetDefault("fetch.rate_limit", 2.0)
	v.SetDefault("fetch.retries", 3)
	v.SetDefault("fetch.store_path", "output/seen.json")
	v.SetDefault("fetch.link_delay_sec", 2)

	v.SetDefault("download.save_path", "output")
	v.SetDefault("download.threads", 4)
	v.SetDefault("download.with_cover", false)
	v.SetDefault("download.with_music", false)
	v.SetDefault("download.with_metadata", true)

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.max_scrolls", 60)
	v.SetDefault("browser.idle_rounds", 5)
	v.SetDefault("browser.wait_timeout", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)
}

// MergeCLIFlags 合并命令行参数到配置,命令行优先于配置文件
func (c *Config) MergeCLIFlags(cookie, proxy, savePath, startDate, endDate string, number, threads, retries int, incremental, headless bool) {
	if cookie != "" {
		c.Auth.Cookie = cookie
	}
	if proxy != "" {
		c.Auth.Proxy = proxy
	}
	if savePath != "" {
		c.Download.SavePath = savePath
	}
	if startDate != "" {
		c.Fetch.StartDate = startDate
	}
	if endDate != "" {
		c.Fetch.EndDate = endDate
	}
	if number > 0 {
		c.Fetch.Number = number
	}
	if threads > 0 {
		c.Download.Threads = threads
	}
	if retries > 0 {
		c.Fetch.Retries = retries
	}
	if incremental {
		c.Fetch.Incremental = true
	}
	if headless {
		c.Browser.Headless = true
	}
}
