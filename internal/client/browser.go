package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/RecoveryAshes/dycrawl/internal/models"
	"github.com/RecoveryAshes/dycrawl/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// postAPIPathFragment 用户作品列表接口的URL特征,网络拦截按它过滤响应
const postAPIPathFragment = "/aweme/v1/web/aweme/post/"

// BrowserFallbackOptions 浏览器兜底采集配置
type BrowserFallbackOptions struct {
	ExpectedCount int    // 采集数量目标(调用方设定的上限),>0时作为滚动停止条件,0时靠无新增轮数停止
	Headless      bool   // 无头模式下遇到验证码直接放弃
	MaxScrolls    int    // 最大滚动轮数,0取默认60
	IdleRounds    int    // 连续无新增多少轮后停止,0取默认5
	WaitTimeout   int    // 验证码人工处理等待秒数,0取默认30
	Proxy         string // 浏览器代理,空为直连
}

func (o *BrowserFallbackOptions) applyDefaults() {
	if o.MaxScrolls <= 0 {
		o.MaxScrolls = 60
	}
	if o.IdleRounds <= 0 {
		o.IdleRounds = 5
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = 30
	}
}

// CollectUserPostIDsViaBrowser 浏览器兜底采集用户主页作品id
// API持续拉空时的最后手段: 真实浏览器打开用户主页,滚动触发懒加载,
// 同时从网络拦截和DOM两路收集作品id,退出前把浏览器Cookie同步回API客户端
// 浏览器崩溃或panic时降级返回已收集的部分结果
func (c *Client) CollectUserPostIDsViaBrowser(ctx context.Context, secUID string, opts BrowserFallbackOptions) (result BrowserCollection, err error) {
	opts.applyDefaults()

	network := NewIDCollector()
	dom := NewIDCollector()

	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("浏览器兜底panic: secUID=%s, %v", secUID, r)
			result = MergeCollections(network, dom)
			err = fmt.Errorf("浏览器兜底异常退出: %v", r)
		}
	}()

	browser, page, launchErr := c.launchFallbackBrowser(opts)
	if launchErr != nil {
		return MergeCollections(network, dom), launchErr
	}
	defer func() {
		c.syncBrowserCookies(page)
		browser.MustClose()
		utils.Debugf("兜底浏览器已关闭")
	}()

	if seedErr := c.seedBrowserCookies(page); seedErr != nil {
		utils.Warnf("播种浏览器Cookie失败: %v", seedErr)
	}

	c.interceptPostResponses(page, network)

	userURL := c.baseURL + "/user/" + secUID
	utils.Infof("🌐 启动浏览器兜底采集: %s", userURL)
	if navErr := page.Context(ctx).Navigate(userURL); navErr != nil {
		return MergeCollections(network, dom), fmt.Errorf("打开用户主页失败: %w", navErr)
	}
	page.Context(ctx).WaitLoad()

	if stop := c.handleCaptcha(ctx, page, userURL, opts); stop {
		return MergeCollections(network, dom), nil
	}

	// 预热: 等首批作品渲染出来再开始滚动
	warmup := min(20, max(3, opts.WaitTimeout))
	for i := 0; i < warmup; i++ {
		dom.AddAll(extractDOMIDs(page))
		if dom.Len() > 0 || network.Len() > 0 {
			break
		}
		if !sleepCtx(ctx, time.Second) {
			return MergeCollections(network, dom), ctx.Err()
		}
	}

	c.scrollUntilDone(ctx, page, network, dom, opts)

	result = MergeCollections(network, dom)
	utils.Infof("✅ 浏览器兜底采集完成: 共 %d 个作品id (网络 %d, DOM补充 %d)",
		len(result.IDs), network.Len(), len(result.IDs)-network.Len())
	return result, nil
}

func (c *Client) launchFallbackBrowser(opts BrowserFallbackOptions) (*rod.Browser, *rod.Page, error) {
	l := launcher.New().Headless(opts.Headless)
	if opts.Proxy != "" {
		l = l.Proxy(opts.Proxy)
	}
	l = l.Set("disable-blink-features", "AutomationControlled")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	page, err := stealth.Page(browser)
	if err != nil {
		browser.MustClose()
		return nil, nil, fmt.Errorf("创建stealth页面失败: %w", err)
	}
	return browser, page, nil
}

// seedBrowserCookies 把API客户端的Cookie播种进浏览器,跳过会话身份类
func (c *Client) seedBrowserCookies(page *rod.Page) error {
	payload := c.BrowserCookiePayload()
	if len(payload) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(payload))
	for name, value := range payload {
		params = append(params, &proto.NetworkCookieParam{
			Name:   name,
			Value:  value,
			Domain: ".douyin.com",
			Path:   "/",
		})
	}
	if err := page.SetCookies(params); err != nil {
		return err
	}
	utils.Debugf("已向浏览器播种 %d 个Cookie", len(params))
	return nil
}

// interceptPostResponses 拦截作品列表接口的响应,直接拿到带完整详情的作品
func (c *Client) interceptPostResponses(page *rod.Page, network *IDCollector) {
	router := page.HijackRequests()
	router.MustAdd("*", func(hctx *rod.Hijack) {
		hctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	go page.EachEvent(func(e *proto.NetworkResponseReceived) {
		if !strings.Contains(e.Response.URL, postAPIPathFragment) {
			return
		}
		body, err := proto.NetworkGetResponseBody{RequestID: e.RequestID}.Call(page)
		if err != nil {
			utils.Debugf("读取拦截响应体失败: %v", err)
			return
		}

		var content []byte
		if body.Base64Encoded {
			content, err = base64.StdEncoding.DecodeString(body.Body)
			if err != nil {
				utils.Debugf("拦截响应Base64解码失败: %v", err)
				return
			}
		} else {
			content = []byte(body.Body)
		}

		var postPage models.PostPage
		if err := json.Unmarshal(content, &postPage); err != nil {
			utils.Debugf("拦截响应JSON解析失败: %v", err)
			return
		}
		added := 0
		for i := range postPage.AwemeList {
			if network.AddItem(&postPage.AwemeList[i]) {
				added++
			}
		}
		if added > 0 {
			utils.Infof("📥 网络拦截捕获 %d 个新作品 (累计 %d)", added, network.Len())
		}
	})()

	go router.Run()
}

// handleCaptcha 检查验证码页并等待人工处理
// 无头模式无人可以处理,直接放弃;有头模式轮询标题等待通过后重新进入主页
// 返回true表示应放弃本次兜底
func (c *Client) handleCaptcha(ctx context.Context, page *rod.Page, userURL string, opts BrowserFallbackOptions) bool {
	if !pageTitleHasCaptcha(page) {
		return false
	}
	if opts.Headless {
		utils.Warnf("无头模式遇到验证码,放弃浏览器兜底")
		return true
	}

	utils.Warnf("⚠️ 检测到验证码,请在浏览器窗口中手动完成验证 (最多等待 %d 秒)", opts.WaitTimeout)
	if !awaitCaptchaCleared(ctx, func() bool { return pageTitleHasCaptcha(page) }, opts.WaitTimeout) {
		utils.Warnf("等待 %d 秒后验证码仍未通过,放弃浏览器兜底", opts.WaitTimeout)
		return true
	}
	utils.Infof("✅ 验证码已通过,继续采集")

	// 验证通过后页面可能停在验证码落地页,重新进入用户主页
	if err := page.Context(ctx).Navigate(userURL); err != nil {
		utils.Warnf("验证后重新进入主页失败: %v", err)
		return true
	}
	page.Context(ctx).WaitLoad()
	return false
}

// awaitCaptchaCleared 每秒检查一次验证码是否还在,返回true表示已通过
// 超时或ctx取消时返回false
func awaitCaptchaCleared(ctx context.Context, stillCaptcha func() bool, timeoutSec int) bool {
	for i := 0; i < timeoutSec; i++ {
		if !sleepCtx(ctx, time.Second) {
			return false
		}
		if !stillCaptcha() {
			return true
		}
	}
	return false
}

func pageTitleHasCaptcha(page *rod.Page) bool {
	info, err := page.Info()
	if err != nil {
		return false
	}
	return strings.Contains(info.Title, "验证码")
}

// scrollUntilDone 滚动触发懒加载,直到数量达标、连续无新增或滚动轮数耗尽
func (c *Client) scrollUntilDone(ctx context.Context, page *rod.Page, network, dom *IDCollector, opts BrowserFallbackOptions) {
	stableRounds := 0
	for scroll := 0; scroll < opts.MaxScrolls; scroll++ {
		before := collectedCount(network, dom)

		if err := page.Mouse.Scroll(0, 3800, 1); err != nil {
			utils.Warnf("页面滚动失败: %v", err)
			return
		}
		if !sleepCtx(ctx, 1200*time.Millisecond) {
			return
		}

		dom.AddAll(extractDOMIDs(page))
		total := collectedCount(network, dom)

		if total == before {
			stableRounds++
		} else {
			stableRounds = 0
			utils.Debugf("滚动第 %d 轮: 累计 %d 个作品id", scroll+1, total)
		}

		if opts.ExpectedCount > 0 && total >= opts.ExpectedCount {
			utils.Infof("已达到主页作品总数 %d,停止滚动", opts.ExpectedCount)
			return
		}
		if opts.ExpectedCount <= 0 && stableRounds >= opts.IdleRounds {
			utils.Debugf("连续 %d 轮无新增,停止滚动", stableRounds)
			return
		}
	}
	utils.Debugf("达到最大滚动轮数 %d,停止滚动", opts.MaxScrolls)
}

// collectedCount 两路合并去重后的当前数量
func collectedCount(network, dom *IDCollector) int {
	return len(MergeCollections(network, dom).IDs)
}

// extractDOMIDs 从页面DOM中提取作品id
// 两个来源: 作品卡片链接中的/video/与/note/路径,以及内联数据里的id字段
func extractDOMIDs(page *rod.Page) []string {
	result, err := page.Eval(`() => {
		const ids = new Set();
		const linkRe = /\/(?:video|note)\/(\d{15,20})/;
		for (const a of document.querySelectorAll('a[href]')) {
			const m = a.href.match(linkRe);
			if (m) ids.add(m[1]);
		}
		const html = document.documentElement.innerHTML;
		for (const m of html.matchAll(/"aweme_id"\s*:\s*"(\d{15,20})"/g)) ids.add(m[1]);
		for (const m of html.matchAll(/"group_id"\s*:\s*"(\d{15,20})"/g)) ids.add(m[1]);
		return Array.from(ids);
	}`)
	if err != nil {
		utils.Debugf("DOM提取执行失败: %v", err)
		return nil
	}

	var ids []string
	for _, v := range result.Value.Arr() {
		if id := v.Str(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// syncBrowserCookies 退出前把浏览器的Cookie合并回API客户端
// 浏览器过验证码时服务端会下发新的风控Cookie,带回去能救活后续API请求
func (c *Client) syncBrowserCookies(page *rod.Page) {
	defer func() {
		if r := recover(); r != nil {
			utils.Debugf("导出浏览器Cookie时panic: %v", r)
		}
	}()

	cookies, err := page.Cookies([]string{c.baseURL})
	if err != nil {
		utils.Warnf("导出浏览器Cookie失败: %v", err)
		return
	}
	merged := make(map[string]string, len(cookies))
	for _, ck := range cookies {
		merged[ck.Name] = ck.Value
	}
	c.MergeCookies(merged)
}

// sleepCtx 可取消的睡眠,返回false表示ctx已取消
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
