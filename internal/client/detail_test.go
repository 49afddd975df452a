package client

import (
	"testing"
)

// TestParseRenderData 从分享页内联数据中提取最小字段集
func TestParseRenderData(t *testing.T) {
	data := `{"aweme":{"detail":{"awemeId":"7123456789012345678",` +
		`"desc":"测试\"标题\"","createTime":"1718417400",` +
		`"video":{"playAddr":[{"src":"\/\/v26.douyinvod.com\/video.mp4?sig=1"}]}}}}`

	item := parseRenderData("7123456789012345678", data)
	if item == nil {
		t.Fatal("parseRenderData() 返回nil")
	}
	if item.AwemeID != "7123456789012345678" {
		t.Errorf("AwemeID = %s", item.AwemeID)
	}
	if item.Desc != `测试"标题"` {
		t.Errorf("Desc = %s, 转义处理失败", item.Desc)
	}
	if item.CreateTime != 1718417400 {
		t.Errorf("CreateTime = %d, 期望 1718417400", item.CreateTime)
	}

	playURL := item.Video.PlayAddr.First()
	expected := "https://v26.douyinvod.com/video.mp4?sig=1"
	if playURL != expected {
		t.Errorf("播放地址 = %s, 期望 %s (协议补全+反转义)", playURL, expected)
	}
}

// TestParseRenderDataNoVideo 没有播放地址时放弃,让下一个策略接手
func TestParseRenderDataNoVideo(t *testing.T) {
	if item := parseRenderData("123", `{"aweme":{"detail":{"desc":"只有文本"}}}`); item != nil {
		t.Errorf("缺少播放地址应返回nil, 实际 %+v", item)
	}
}
