package models

import (
	"testing"
	"time"
)

// TestDetectLinkType 各类链接的识别
func TestDetectLinkType(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected LinkType
	}{
		{"分享短链", "https://v.douyin.com/iABCDEF/", LinkShort},
		{"用户主页", "https://www.douyin.com/user/MS4wLjABAAAAxxx", LinkUser},
		{"单个视频", "https://www.douyin.com/video/7123456789012345678", LinkVideo},
		{"图文作品", "https://www.douyin.com/note/7123456789012345678", LinkNote},
		{"合集collection", "https://www.douyin.com/collection/7123456789", LinkMix},
		{"合集mix", "https://www.douyin.com/mix/7123456789", LinkMix},
		{"音乐页", "https://www.douyin.com/music/7123456789", LinkMusic},
		{"直播间", "https://live.douyin.com/123456", LinkLive},
		{"无关链接", "https://example.com/page", LinkUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectLinkType(tt.url); got != tt.expected {
				t.Errorf("DetectLinkType(%s) = %s, 期望 %s", tt.url, got, tt.expected)
			}
		})
	}
}

// TestAwemeHelpers 置顶判断、类型判断与创建日期
func TestAwemeHelpers(t *testing.T) {
	pinned := &Aweme{AwemeID: "1", IsTop: 1}
	if !pinned.Pinned() {
		t.Error("is_top=1 应为置顶")
	}
	if (&Aweme{AwemeID: "2"}).Pinned() {
		t.Error("is_top=0 不应为置顶")
	}

	imageItem := &Aweme{Images: []Image{{URLList: []string{"https://x/1.jpg"}}}}
	if imageItem.Type() != AwemeImage {
		t.Errorf("带images的作品类型 = %s, 期望 %s", imageItem.Type(), AwemeImage)
	}
	if (&Aweme{}).Type() != AwemeVideo {
		t.Error("默认类型应为视频")
	}

	item := &Aweme{CreateTime: time.Date(2024, 6, 15, 10, 0, 0, 0, time.Local).Unix()}
	if item.CreateDate() != "2024-06-15" {
		t.Errorf("CreateDate() = %s, 期望 2024-06-15", item.CreateDate())
	}
}

// TestPostPageCursor 游标兼容max_cursor与cursor两种字段
func TestPostPageCursor(t *testing.T) {
	post := &PostPage{HasMore: 1, MaxCursor: 1700000000}
	if !post.More() || post.NextCursor() != 1700000000 {
		t.Errorf("用户作品页游标 = %d, 期望 1700000000", post.NextCursor())
	}

	mix := &PostPage{HasMore: 0, Cursor: 20}
	if mix.More() {
		t.Error("has_more=0 不应继续")
	}
	if mix.NextCursor() != 20 {
		t.Errorf("合集页游标 = %d, 期望 20", mix.NextCursor())
	}
}

// TestURLContainerFirst nil与空列表都返回空串
func TestURLContainerFirst(t *testing.T) {
	var nilContainer *URLContainer
	if nilContainer.First() != "" {
		t.Error("nil容器应返回空串")
	}
	if (&URLContainer{}).First() != "" {
		t.Error("空列表应返回空串")
	}
	c := &URLContainer{URLList: []string{"https://a", "https://b"}}
	if c.First() != "https://a" {
		t.Errorf("First() = %s, 期望第一个URL", c.First())
	}
}
