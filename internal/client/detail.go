package client

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/RecoveryAshes/dycrawl/internal/models"
	"github.com/RecoveryAshes/dycrawl/internal/utils"
	"github.com/gocolly/colly/v2"
)

// detailStrategy 单条作品详情的获取策略
// 按注册顺序依次尝试,前面的失败后静默降级到后面的
type detailStrategy interface {
	name() string
	fetch(ctx context.Context, awemeID string) (*models.Aweme, error)
}

func defaultDetailStrategies(c *Client) []detailStrategy {
	return []detailStrategy{
		&webDetailStrategy{client: c},
		&legacyItemInfoStrategy{client: c},
		&sharePageStrategy{client: c},
	}
}

// webDetailStrategy 签名版Web详情接口,信息最全
type webDetailStrategy struct {
	client *Client
}

func (s *webDetailStrategy) name() string { return "web_detail" }

func (s *webDetailStrategy) fetch(ctx context.Context, awemeID string) (*models.Aweme, error) {
	params := s.client.defaultQuery()
	params.Set("aweme_id", awemeID)
	params.Set("aid", "1128")
	params.Set("version_name", "23.5.0")
	params.Set("device_platform", "ios")

	var wrapper struct {
		AwemeDetail *models.Aweme `json:"aweme_detail"`
	}
	if err := s.client.signedGet(ctx, "/aweme/v1/web/aweme/detail/", params, &wrapper); err != nil {
		return nil, err
	}
	if wrapper.AwemeDetail == nil || wrapper.AwemeDetail.AwemeID == "" {
		return nil, fmt.Errorf("详情接口未返回aweme_detail")
	}
	return wrapper.AwemeDetail, nil
}

// legacyItemInfoStrategy 旧版iteminfo接口,无需签名
type legacyItemInfoStrategy struct {
	client *Client
}

func (s *legacyItemInfoStrategy) name() string { return "legacy_iteminfo" }

func (s *legacyItemInfoStrategy) fetch(ctx context.Context, awemeID string) (*models.Aweme, error) {
	endpoint := "https://www.iesdouyin.com/web/api/v2/aweme/iteminfo/?item_ids=" + url.QueryEscape(awemeID)

	req, err := newJSONRequest(ctx, endpoint, s.client.userAgent)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("iteminfo返回 HTTP %d", resp.StatusCode)
	}

	var wrapper struct {
		ItemList []*models.Aweme `json:"item_list"`
	}
	if err := unmarshalLenient(body, &wrapper); err != nil {
		return nil, err
	}
	if len(wrapper.ItemList) == 0 || wrapper.ItemList[0] == nil {
		return nil, fmt.Errorf("iteminfo返回空item_list")
	}
	item := wrapper.ItemList[0]
	if item.AwemeID == "" {
		item.AwemeID = awemeID
	}
	return item, nil
}

var (
	renderDescRe     = regexp.MustCompile(`"desc"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	renderCreateRe   = regexp.MustCompile(`"createTime"\s*:\s*"?(\d{9,10})"?`)
	renderPlayAddrRe = regexp.MustCompile(`"playAddr"\s*:\s*\[\s*\{\s*"src"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// sharePageStrategy 分享页HTML兜底
// 抓取分享页并从RENDER_DATA脚本中正则提取最小字段集,只够下载使用
type sharePageStrategy struct {
	client *Client
}

func (s *sharePageStrategy) name() string { return "share_page" }

func (s *sharePageStrategy) fetch(ctx context.Context, awemeID string) (*models.Aweme, error) {
	collector := colly.NewCollector(
		colly.UserAgent(s.client.userAgent),
		colly.AllowedDomains("www.iesdouyin.com", "www.douyin.com"),
	)
	collector.SetClient(s.client.http)

	var item *models.Aweme
	collector.OnHTML("script#RENDER_DATA", func(e *colly.HTMLElement) {
		decoded, err := url.QueryUnescape(e.Text)
		if err != nil {
			utils.Debugf("RENDER_DATA解码失败: %s, %v", awemeID, err)
			return
		}
		item = parseRenderData(awemeID, decoded)
	})

	shareURL := "https://www.iesdouyin.com/share/video/" + awemeID + "/"
	if err := collector.Visit(shareURL); err != nil {
		return nil, fmt.Errorf("访问分享页失败: %w", err)
	}
	collector.Wait()

	if item == nil {
		return nil, fmt.Errorf("分享页未提取到作品数据")
	}
	return item, nil
}

// parseRenderData 从解码后的RENDER_DATA中提取最小作品详情
func parseRenderData(awemeID, data string) *models.Aweme {
	playMatch := renderPlayAddrRe.FindStringSubmatch(data)
	if playMatch == nil {
		return nil
	}
	src := unescapeJSONString(playMatch[1])
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}

	item := &models.Aweme{
		AwemeID: awemeID,
		Video: &models.Video{
			PlayAddr: &models.URLContainer{URLList: []string{src}},
		},
	}

	if m := renderDescRe.FindStringSubmatch(data); m != nil {
		item.Desc = unescapeJSONString(m[1])
	}
	if m := renderCreateRe.FindStringSubmatch(data); m != nil {
		if ts, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			item.CreateTime = ts
		}
	}
	return item
}

// unescapeJSONString 处理正则截取出的JSON字符串转义
func unescapeJSONString(s string) string {
	replacer := strings.NewReplacer(
		`\/`, `/`,
		`\"`, `"`,
		`\\`, `\`,
	)
	return replacer.Replace(s)
}
