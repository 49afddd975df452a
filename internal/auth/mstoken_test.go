package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

func newTestManager(manifestURL string) *MSTokenManager {
	m := NewMSTokenManager(testUA)
	m.ManifestURL = manifestURL
	m.CacheTTL = time.Hour
	return m
}

// TestEnsureMSTokenIdempotent Cookie中已有msToken时不发起网络请求
func TestEnsureMSTokenIdempotent(t *testing.T) {
	m := newTestManager("http://127.0.0.1:0/unreachable")
	cookies := map[string]string{"msToken": "existing-token"}

	if got := m.EnsureMSToken(cookies); got != "existing-token" {
		t.Errorf("EnsureMSToken() = %q, 期望复用已有令牌", got)
	}
}

// TestEnsureMSTokenRealToken 通过mssdk接口获取真实令牌
func TestEnsureMSTokenRealToken(t *testing.T) {
	realToken := strings.Repeat("a", 184)

	signServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("签名接口期望POST,收到%s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("请求体不是合法JSON: %v", err)
		}
		if _, ok := payload["tspFromClient"]; !ok {
			t.Error("请求体缺少tspFromClient字段")
		}
		http.SetCookie(w, &http.Cookie{Name: "msToken", Value: realToken})
		w.WriteHeader(http.StatusOK)
	}))
	defer signServer.Close()

	manifestServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `f2:
  douyin:
    msToken:
      url: %s
      magic: 538969122
      version: 1
      dataType: 8
      strData: "test-payload"
      ulr: 0
`, signServer.URL)
	}))
	defer manifestServer.Close()

	m := newTestManager(manifestServer.URL)
	got := m.EnsureMSToken(map[string]string{})
	if got != realToken {
		t.Errorf("EnsureMSToken() 未返回真实令牌: 长度=%d", len(got))
	}
}

// TestEnsureMSTokenFallback 接口不可达时回退到随机令牌
func TestEnsureMSTokenFallback(t *testing.T) {
	m := newTestManager("http://127.0.0.1:0/unreachable")
	m.Client = &http.Client{Timeout: 200 * time.Millisecond}

	got := m.EnsureMSToken(map[string]string{})
	if len(got) != falseTokenBodyLen+2 {
		t.Errorf("回退令牌长度 = %d, 期望 %d", len(got), falseTokenBodyLen+2)
	}
	if !strings.HasSuffix(got, "==") {
		t.Errorf("回退令牌缺少==后缀: %q", got[len(got)-4:])
	}
	for _, ch := range got[:falseTokenBodyLen] {
		if !strings.ContainsRune(alphanumerics, ch) {
			t.Errorf("回退令牌包含非字母数字字符: %q", ch)
			break
		}
	}
}

// TestEnsureMSTokenInvalidLength 长度异常的令牌被拒绝并回退
func TestEnsureMSTokenInvalidLength(t *testing.T) {
	signServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "msToken", Value: "too-short"})
	}))
	defer signServer.Close()

	manifestServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "f2:\n  douyin:\n    msToken:\n      url: %s\n      strData: x\n", signServer.URL)
	}))
	defer manifestServer.Close()

	m := newTestManager(manifestServer.URL)
	got := m.EnsureMSToken(map[string]string{})
	if !strings.HasSuffix(got, "==") || len(got) != falseTokenBodyLen+2 {
		t.Errorf("期望回退令牌,实际 = 长度%d", len(got))
	}
}

// TestManifestCache 配置清单在TTL内只拉取一次
func TestManifestCache(t *testing.T) {
	hits := 0
	manifestServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, "f2:\n  douyin:\n    msToken:\n      url: http://example.invalid\n      strData: x\n")
	}))
	defer manifestServer.Close()

	m := newTestManager(manifestServer.URL)
	m.loadManifest()
	m.loadManifest()
	m.loadManifest()

	if hits != 1 {
		t.Errorf("TTL内配置清单被拉取了 %d 次, 期望1次", hits)
	}
}

// TestIsValidMSToken 固定长度校验
func TestIsValidMSToken(t *testing.T) {
	tests := []struct {
		length   int
		expected bool
	}{
		{164, true},
		{184, true},
		{163, false},
		{0, false},
		{200, false},
	}
	for _, tt := range tests {
		token := strings.Repeat("x", tt.length)
		if got := IsValidMSToken(token); got != tt.expected {
			t.Errorf("IsValidMSToken(长度%d) = %v, 期望 %v", tt.length, got, tt.expected)
		}
	}
}
