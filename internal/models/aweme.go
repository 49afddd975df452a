package models

import (
	"strings"
	"time"
)

// AwemeType 作品类型
type AwemeType string

const (
	AwemeVideo AwemeType = "video" // 视频作品
	AwemeImage AwemeType = "image" // 图集作品
	AwemeLive  AwemeType = "live"  // 直播间
)

// URLContainer 平台返回的URL列表容器
type URLContainer struct {
	URI     string   `json:"uri,omitempty"`
	URLList []string `json:"url_list"`
}

// First 返回第一个可用URL,列表为空时返回空字符串
func (u *URLContainer) First() string {
	if u == nil || len(u.URLList) == 0 {
		return ""
	}
	return u.URLList[0]
}

// BitRate 视频码率变体
type BitRate struct {
	GearName string        `json:"gear_name"`
	BitRate  int64         `json:"bit_rate"`
	PlayAddr *URLContainer `json:"play_addr"`
}

// Video 视频媒体描述
type Video struct {
	PlayAddr     *URLContainer `json:"play_addr"`
	PlayAddrH264 *URLContainer `json:"play_addr_h264"`
	DownloadAddr *URLContainer `json:"download_addr"`
	Cover        *URLContainer `json:"cover"`
	OriginCover  *URLContainer `json:"origin_cover"`
	BitRateList  []BitRate     `json:"bit_rate"`
	Duration     int64         `json:"duration"`
}

// Image 图集中的单张图片
type Image struct {
	URLList []string `json:"url_list"`
}

// Music 作品背景音乐
type Music struct {
	ID      int64         `json:"id"`
	IDStr   string        `json:"id_str"`
	Title   string        `json:"title"`
	Author  string        `json:"author"`
	PlayURL *URLContainer `json:"play_url"`
}

// Author 作品作者
type Author struct {
	UID      string `json:"uid"`
	SecUID   string `json:"sec_uid"`
	Nickname string `json:"nickname"`
}

// Aweme 单个作品(平台JSON原样映射,抓取后不可变)
type Aweme struct {
	AwemeID    string  `json:"aweme_id"`
	Desc       string  `json:"desc"`
	CreateTime int64   `json:"create_time"`
	IsTop      int     `json:"is_top"` // 1=置顶作品
	Author     *Author `json:"author"`
	Video      *Video  `json:"video"`
	Images     []Image `json:"images"`
	Music      *Music  `json:"music"`
}

// Pinned 作品是否为置顶作品
func (a *Aweme) Pinned() bool {
	return a != nil && a.IsTop != 0
}

// Type 根据媒体字段判断作品类型
func (a *Aweme) Type() AwemeType {
	if len(a.Images) > 0 {
		return AwemeImage
	}
	return AwemeVideo
}

// CreateDate 创建时间的 YYYY-MM-DD 表示,用于时间窗口过滤
func (a *Aweme) CreateDate() string {
	return time.Unix(a.CreateTime, 0).Format("2006-01-02")
}

// PostPage 列表接口的单页响应
type PostPage struct {
	StatusCode int     `json:"status_code"`
	AwemeList  []Aweme `json:"aweme_list"`
	HasMore    int     `json:"has_more"`
	MaxCursor  int64   `json:"max_cursor"`
	Cursor     int64   `json:"cursor"` // 合集/音乐接口使用cursor字段
}

// More 页面是否还有后续数据
func (p *PostPage) More() bool {
	return p != nil && p.HasMore != 0
}

// NextCursor 取下一页游标,兼容max_cursor与cursor两种字段
func (p *PostPage) NextCursor() int64 {
	if p.MaxCursor != 0 {
		return p.MaxCursor
	}
	return p.Cursor
}

// UserProfile 用户主页信息
type UserProfile struct {
	UID        string `json:"uid"`
	SecUID     string `json:"sec_uid"`
	Nickname   string `json:"nickname"`
	AwemeCount int    `json:"aweme_count"`
	Signature  string `json:"signature"`
}

// LiveRoom 直播间信息
type LiveRoom struct {
	Title  string `json:"title"`
	Status int    `json:"status"` // 2=直播中 4=已下播
	Owner  string `json:"owner,omitempty"`
	HLSURL string `json:"hls_url,omitempty"`
}

// Live 直播间是否开播中
func (r *LiveRoom) Live() bool {
	return r != nil && r.Status == 2
}

// LinkType 输入链接类型
type LinkType string

const (
	LinkUser    LinkType = "user"    // 用户主页
	LinkVideo   LinkType = "video"   // 单个视频
	LinkNote    LinkType = "note"    // 图文作品
	LinkMix     LinkType = "mix"     // 合集
	LinkMusic   LinkType = "music"   // 音乐页
	LinkLive    LinkType = "live"    // 直播间
	LinkShort   LinkType = "short"   // v.douyin.com 短链
	LinkUnknown LinkType = "unknown" // 无法识别
)

// DetectLinkType 根据URL路径特征判断链接类型
func DetectLinkType(rawURL string) LinkType {
	switch {
	case strings.Contains(rawURL, "v.douyin.com"):
		return LinkShort
	case strings.Contains(rawURL, "/user/"):
		return LinkUser
	case strings.Contains(rawURL, "/video/"):
		return LinkVideo
	case strings.Contains(rawURL, "/note/"):
		return LinkNote
	case strings.Contains(rawURL, "/collection/"), strings.Contains(rawURL, "/mix/"):
		return LinkMix
	case strings.Contains(rawURL, "/music/"):
		return LinkMusic
	case strings.Contains(rawURL, "live.douyin.com"):
		return LinkLive
	default:
		return LinkUnknown
	}
}
