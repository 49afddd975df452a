package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// validMSToken 164位有效msToken,避免测试触发网络请求
var validMSToken = strings.Repeat("a", 164)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Options{
		Cookies: map[string]string{
			"ttwid":   "test-ttwid",
			"msToken": validMSToken,
		},
		BaseURL: baseURL,
	})
	if err != nil {
		t.Fatalf("New() 失败: %v", err)
	}
	return c
}

// TestGetUserPostSignedRequest 请求带基线参数、签名参数与认证头
func TestGetUserPostSignedRequest(t *testing.T) {
	var gotQuery map[string][]string
	var gotUA, gotCookie string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotUA = r.Header.Get("User-Agent")
		gotCookie = r.Header.Get("Cookie")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status_code":0,"aweme_list":[{"aweme_id":"7123456789012345678"}],"has_more":1,"max_cursor":100}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	page, err := c.GetUserPost(context.Background(), "MS4wLjABtest", 0, 20)
	if err != nil {
		t.Fatalf("GetUserPost() 失败: %v", err)
	}

	if len(page.AwemeList) != 1 || page.AwemeList[0].AwemeID != "7123456789012345678" {
		t.Errorf("解析结果错误: %+v", page.AwemeList)
	}
	if page.NextCursor() != 100 {
		t.Errorf("游标 = %d, 期望 100", page.NextCursor())
	}

	// 基线设备参数
	for key, expected := range map[string]string{
		"device_platform": "webapp",
		"aid":             "6383",
		"sec_user_id":     "MS4wLjABtest",
		"count":           "20",
		"msToken":         validMSToken,
	} {
		if got := first(gotQuery[key]); got != expected {
			t.Errorf("query[%s] = %s, 期望 %s", key, got, expected)
		}
	}

	// 签名参数必须存在其一
	if len(gotQuery["a_bogus"]) == 0 && len(gotQuery["X-Bogus"]) == 0 {
		t.Error("请求缺少签名参数 (a_bogus / X-Bogus)")
	}

	if !strings.Contains(gotUA, "Chrome") {
		t.Errorf("User-Agent异常: %s", gotUA)
	}
	if !strings.Contains(gotCookie, "ttwid=test-ttwid") {
		t.Errorf("Cookie头缺少ttwid: %s", gotCookie)
	}
}

// TestGetUserInfo 用户信息从user字段解包
func TestGetUserInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":{"sec_uid":"MS4wLjABtest","nickname":"测试用户","aweme_count":42}}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	profile, err := c.GetUserInfo(context.Background(), "MS4wLjABtest")
	if err != nil {
		t.Fatalf("GetUserInfo() 失败: %v", err)
	}
	if profile.Nickname != "测试用户" || profile.AwemeCount != 42 {
		t.Errorf("profile = %+v", profile)
	}
}

// TestSignedGetHTTPError 非200状态码返回错误
func TestSignedGetHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	if _, err := c.GetUserPost(context.Background(), "MS4wLjABtest", 0, 20); err == nil {
		t.Error("HTTP 403 应返回错误")
	}
}

// TestResolveShortURL 追踪重定向到最终地址
func TestResolveShortURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/short" {
			http.Redirect(w, r, "/video/7123456789012345678", http.StatusFound)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	final, err := c.ResolveShortURL(context.Background(), server.URL+"/short")
	if err != nil {
		t.Fatalf("ResolveShortURL() 失败: %v", err)
	}
	if !strings.Contains(final, "/video/7123456789012345678") {
		t.Errorf("最终URL = %s, 期望包含作品路径", final)
	}
}

// TestMergeCookiesSanitizes 合并时清洗非法Cookie名
func TestMergeCookiesSanitizes(t *testing.T) {
	c := testClient(t, "https://www.douyin.com")
	c.MergeCookies(map[string]string{
		"odin_tt":  "new-value",
		"bad;name": "dropped",
		"":         "dropped",
	})

	cookies := c.Cookies()
	if cookies["odin_tt"] != "new-value" {
		t.Error("合法Cookie未合并")
	}
	if _, exists := cookies["bad;name"]; exists {
		t.Error("非法Cookie名应被丢弃")
	}
}

// TestBrowserCookiePayload 播种集排除登录会话Cookie
func TestBrowserCookiePayload(t *testing.T) {
	c, err := New(Options{Cookies: map[string]string{
		"ttwid":     "keep",
		"odin_tt":   "keep",
		"sessionid": "blocked",
		"sid_guard": "blocked",
	}})
	if err != nil {
		t.Fatalf("New() 失败: %v", err)
	}

	payload := c.BrowserCookiePayload()
	if _, exists := payload["sessionid"]; exists {
		t.Error("sessionid 不应进入浏览器播种集")
	}
	if _, exists := payload["sid_guard"]; exists {
		t.Error("sid_guard 不应进入浏览器播种集")
	}
	if payload["ttwid"] != "keep" || payload["odin_tt"] != "keep" {
		t.Errorf("普通Cookie应保留: %v", payload)
	}
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
