package client

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/RecoveryAshes/dycrawl/internal/auth"
	"github.com/RecoveryAshes/dycrawl/internal/models"
	"github.com/RecoveryAshes/dycrawl/internal/signer"
	"github.com/RecoveryAshes/dycrawl/internal/utils"
	"github.com/andybalholm/brotli"
	"golang.org/x/net/proxy"
)

// DefaultBaseURL 平台Web站点根地址
const DefaultBaseURL = "https://www.douyin.com"

// browserCookieBlocklist 播种浏览器时排除的登录会话Cookie
// 这类Cookie与浏览器指纹强绑定,带入会触发风控
var browserCookieBlocklist = map[string]struct{}{
	"sessionid":                {},
	"sessionid_ss":             {},
	"sid_tt":                   {},
	"sid_guard":                {},
	"uid_tt":                   {},
	"uid_tt_ss":                {},
	"passport_auth_status":     {},
	"passport_auth_status_ss":  {},
	"passport_assist_user":     {},
	"passport_auth_mix_state":  {},
	"passport_mfa_token":       {},
	"login_time":               {},
}

// Options API客户端配置
type Options struct {
	Cookies map[string]string
	Proxy   string        // socks5:// 或 http(s):// 代理地址,空为直连
	Timeout time.Duration // HTTP超时,0取默认30秒
	BaseURL string        // 覆盖站点根地址,测试用
}

// Client 平台私有API客户端
// Cookie与msToken由单个实例独占,生命周期内不跨实例共享
type Client struct {
	baseURL   string
	userAgent string

	cookieMu sync.Mutex
	cookies  map[string]string

	signer       *signer.Signer
	tokenManager *auth.MSTokenManager

	msTokenOnce sync.Once
	msToken     string

	http *http.Client

	detailStrategies []detailStrategy
}

// New 创建API客户端,Cookie在入口处统一清洗
func New(opts Options) (*Client, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
	if opts.Proxy != "" {
		if err := configureProxy(transport, opts.Proxy); err != nil {
			return nil, fmt.Errorf("配置代理失败: %w", err)
		}
	}

	c := &Client{
		baseURL:      baseURL,
		userAgent:    signer.DefaultUserAgent,
		cookies:      auth.SanitizeCookies(opts.Cookies),
		signer:       signer.NewSigner(signer.DefaultUserAgent),
		tokenManager: auth.NewMSTokenManager(signer.DefaultUserAgent),
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
	c.detailStrategies = defaultDetailStrategies(c)

	redactor := utils.NewCookieRedactor()
	utils.Debugf("API客户端已创建, cookies: %s", redactor.RedactToString(c.cookies))
	return c, nil
}

func configureProxy(transport *http.Transport, proxyAddr string) error {
	parsed, err := url.Parse(proxyAddr)
	if err != nil {
		return err
	}
	switch parsed.Scheme {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(parsed, proxy.Direct)
		if err != nil {
			return err
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return fmt.Errorf("SOCKS5代理不支持context拨号")
		}
		transport.DialContext = contextDialer.DialContext
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsed)
	default:
		return fmt.Errorf("不支持的代理协议: %s", parsed.Scheme)
	}
	return nil
}

// Cookies 返回当前Cookie快照
func (c *Client) Cookies() map[string]string {
	c.cookieMu.Lock()
	defer c.cookieMu.Unlock()
	out := make(map[string]string, len(c.cookies))
	for k, v := range c.cookies {
		out[k] = v
	}
	return out
}

// MergeCookies 合并外部Cookie(浏览器导出等),入口清洗
func (c *Client) MergeCookies(cookies map[string]string) {
	sanitized := auth.SanitizeCookies(cookies)
	if len(sanitized) == 0 {
		return
	}
	c.cookieMu.Lock()
	for k, v := range sanitized {
		if v != "" {
			c.cookies[k] = v
		}
	}
	c.cookieMu.Unlock()
	utils.Warnf("已从浏览器同步 %d 个Cookie回API客户端", len(sanitized))
}

// setCookie 写入单个Cookie
func (c *Client) setCookie(name, value string) {
	c.cookieMu.Lock()
	c.cookies[name] = value
	c.cookieMu.Unlock()
}

// ensureMSToken 解析一次msToken并写入Cookie,实例生命周期内至多一次
func (c *Client) ensureMSToken() string {
	c.msTokenOnce.Do(func() {
		c.msToken = c.tokenManager.EnsureMSToken(c.Cookies())
		if c.msToken != "" {
			c.setCookie("msToken", c.msToken)
		}
	})
	return c.msToken
}

// defaultQuery 所有认证请求共用的基线设备指纹参数
func (c *Client) defaultQuery() url.Values {
	q := url.Values{}
	q.Set("device_platform", "webapp")
	q.Set("aid", "6383")
	q.Set("channel", "channel_pc_web")
	q.Set("pc_client_type", "1")
	q.Set("version_code", "170400")
	q.Set("version_name", "17.4.0")
	q.Set("cookie_enabled", "true")
	q.Set("screen_width", "1920")
	q.Set("screen_height", "1080")
	q.Set("browser_language", "zh-CN")
	q.Set("browser_platform", "Win32")
	q.Set("browser_name", "Chrome")
	q.Set("browser_version", "123.0.0.0")
	q.Set("browser_online", "true")
	q.Set("engine_name", "Blink")
	q.Set("engine_version", "123.0.0.0")
	q.Set("os_name", "Windows")
	q.Set("os_version", "10")
	q.Set("cpu_core_num", "8")
	q.Set("device_memory", "8")
	q.Set("platform", "PC")
	q.Set("downlink", "10")
	q.Set("effective_type", "4g")
	q.Set("round_trip_time", "50")
	q.Set("msToken", c.ensureMSToken())
	return q
}

// signedGet 站内路径的认证GET请求
func (c *Client) signedGet(ctx context.Context, path string, params url.Values, out interface{}) error {
	return c.signedGetURL(ctx, c.baseURL+path, params, out)
}

// signedGetURL 组装参数、签名并发起认证GET请求,endpoint为完整URL
// HTTP 200时按宽容模式解析JSON到out,其他状态码返回错误
func (c *Client) signedGetURL(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	signedURL, ua, err := c.signer.Sign(endpoint, params.Encode())
	if err != nil {
		return fmt.Errorf("请求签名失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req, ua)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("接口返回 HTTP %d", resp.StatusCode)
	}
	if len(body) == 0 {
		return fmt.Errorf("接口返回空响应体")
	}
	// 平台偶尔返回text/plain的JSON,不检查Content-Type
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("解析JSON失败: %w", err)
	}
	return nil
}

func (c *Client) applyHeaders(req *http.Request, ua string) {
	if ua == "" {
		ua = c.userAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Referer", c.baseURL+"/")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en-US;q=0.8,en;q=0.7")
	if header := auth.FormatCookieHeader(c.Cookies()); header != "" {
		req.Header.Set("Cookie", header)
	}
}

// newJSONRequest 组装无签名的JSON接口请求
func newJSONRequest(ctx context.Context, endpoint, userAgent string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	return req, nil
}

// unmarshalLenient 宽容解析,空响应体直接报错而不是解析失败
func unmarshalLenient(body []byte, out interface{}) error {
	if len(body) == 0 {
		return fmt.Errorf("响应体为空")
	}
	return json.Unmarshal(body, out)
}

// decodeBody 按Content-Encoding解压响应体,支持gzip/deflate/brotli
func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(reader)
}

// GetUserPost 拉取用户发布作品的一页
func (c *Client) GetUserPost(ctx context.Context, secUID string, cursor int64, count int) (*models.PostPage, error) {
	params := c.defaultQuery()
	params.Set("sec_user_id", secUID)
	params.Set("max_cursor", strconv.FormatInt(cursor, 10))
	params.Set("count", strconv.Itoa(count))
	params.Set("locate_query", "false")
	params.Set("show_live_replay_strategy", "1")
	params.Set("need_time_list", "1")
	params.Set("time_list_query", "0")
	params.Set("whale_cut_token", "")
	params.Set("cut_version", "1")
	params.Set("publish_video_strategy_type", "2")

	var page models.PostPage
	if err := c.signedGet(ctx, "/aweme/v1/web/aweme/post/", params, &page); err != nil {
		utils.Errorf("获取用户作品页失败: %s, cursor=%d, %v", secUID, cursor, err)
		return nil, err
	}
	return &page, nil
}

// GetUserMix 拉取合集作品的一页
func (c *Client) GetUserMix(ctx context.Context, mixID string, cursor int64, count int) (*models.PostPage, error) {
	params := c.defaultQuery()
	params.Set("mix_id", mixID)
	params.Set("cursor", strconv.FormatInt(cursor, 10))
	params.Set("count", strconv.Itoa(count))

	var page models.PostPage
	if err := c.signedGet(ctx, "/aweme/v1/web/mix/aweme/", params, &page); err != nil {
		utils.Errorf("获取合集作品页失败: %s, cursor=%d, %v", mixID, cursor, err)
		return nil, err
	}
	return &page, nil
}

// GetUserMusic 拉取音乐关联作品的一页
func (c *Client) GetUserMusic(ctx context.Context, musicID string, cursor int64, count int) (*models.PostPage, error) {
	params := c.defaultQuery()
	params.Set("music_id", musicID)
	params.Set("cursor", strconv.FormatInt(cursor, 10))
	params.Set("count", strconv.Itoa(count))

	var page models.PostPage
	if err := c.signedGet(ctx, "/aweme/v1/web/music/aweme/", params, &page); err != nil {
		utils.Errorf("获取音乐作品页失败: %s, cursor=%d, %v", musicID, cursor, err)
		return nil, err
	}
	return &page, nil
}

// GetUserInfo 拉取用户主页信息
func (c *Client) GetUserInfo(ctx context.Context, secUID string) (*models.UserProfile, error) {
	params := c.defaultQuery()
	params.Set("sec_user_id", secUID)

	var wrapper struct {
		User *models.UserProfile `json:"user"`
	}
	if err := c.signedGet(ctx, "/aweme/v1/web/user/profile/other/", params, &wrapper); err != nil {
		utils.Errorf("获取用户信息失败: %s, %v", secUID, err)
		return nil, err
	}
	if wrapper.User == nil {
		return nil, fmt.Errorf("响应缺少user字段")
	}
	return wrapper.User, nil
}

// liveEnterEndpoint 直播间进房接口,走live域而不是站点根域
const liveEnterEndpoint = "https://live.douyin.com/webcast/room/web/enter/"

// GetLiveRoom 获取直播间信息与HLS拉流地址
func (c *Client) GetLiveRoom(ctx context.Context, webRid string) (*models.LiveRoom, error) {
	params := c.defaultQuery()
	params.Set("web_rid", webRid)
	params.Set("enter_from", "web_live")
	params.Set("is_need_double_stream", "false")

	var wrapper struct {
		Data struct {
			Rooms []struct {
				Title     string `json:"title"`
				Status    int    `json:"status"`
				StreamURL struct {
					HLSPullURL    string            `json:"hls_pull_url"`
					HLSPullURLMap map[string]string `json:"hls_pull_url_map"`
				} `json:"stream_url"`
				Owner struct {
					Nickname string `json:"nickname"`
				} `json:"owner"`
			} `json:"data"`
		} `json:"data"`
		StatusCode int `json:"status_code"`
	}
	if err := c.signedGetURL(ctx, liveEnterEndpoint, params, &wrapper); err != nil {
		utils.Errorf("获取直播间信息失败: %s, %v", webRid, err)
		return nil, err
	}
	if len(wrapper.Data.Rooms) == 0 {
		return nil, fmt.Errorf("直播间 %s 不存在或未开播", webRid)
	}

	room := wrapper.Data.Rooms[0]
	hls := room.StreamURL.HLSPullURL
	// 优先取FULL_HD1档位,没有就用默认拉流地址
	if u, ok := room.StreamURL.HLSPullURLMap["FULL_HD1"]; ok && u != "" {
		hls = u
	}
	return &models.LiveRoom{
		Title:  room.Title,
		Status: room.Status,
		Owner:  room.Owner.Nickname,
		HLSURL: hls,
	}, nil
}

// GetVideoDetail 获取单个作品详情,按策略链依次尝试
// suppressError时失败只记debug日志,用于兜底采集后的逐id探测
func (c *Client) GetVideoDetail(ctx context.Context, awemeID string, suppressError bool) (*models.Aweme, error) {
	var lastErr error
	for _, strategy := range c.detailStrategies {
		item, err := strategy.fetch(ctx, awemeID)
		if err == nil && item != nil {
			return item, nil
		}
		if err != nil {
			lastErr = err
			if suppressError {
				utils.Debugf("详情策略 %s 失败: %s, %v", strategy.name(), awemeID, err)
			} else {
				utils.Warnf("详情策略 %s 失败: %s, %v", strategy.name(), awemeID, err)
			}
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("所有详情策略均未返回作品")
	}
	if !suppressError {
		utils.Errorf("获取作品详情失败: %s, %v", awemeID, lastErr)
	}
	return nil, lastErr
}

// ResolveShortURL 追踪短链重定向,返回最终URL
func (c *Client) ResolveShortURL(ctx context.Context, shortURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		utils.Errorf("解析短链失败: %s, %v", shortURL, err)
		return "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.Request.URL.String(), nil
}

// BrowserCookiePayload 生成浏览器播种用的Cookie集
// 排除会话身份类Cookie,避免与浏览器指纹冲突
func (c *Client) BrowserCookiePayload() map[string]string {
	payload := make(map[string]string)
	for name, value := range c.Cookies() {
		if _, blocked := browserCookieBlocklist[name]; blocked {
			continue
		}
		payload[name] = value
	}
	return payload
}
