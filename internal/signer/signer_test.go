package signer

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"
)

const testBaseURL = "https://www.douyin.com/aweme/v1/web/aweme/post/"
const testQuery = "device_platform=webapp&aid=6383"

// TestSignerPrefersFirstStrategy 首选方案可用时不触碰兜底方案
func TestSignerPrefersFirstStrategy(t *testing.T) {
	s := NewSigner("")
	signed, ua, err := s.Sign(testBaseURL, testQuery)
	if err != nil {
		t.Fatalf("Sign() 返回错误: %v", err)
	}
	if !strings.HasPrefix(signed, testBaseURL+"?"+testQuery) {
		t.Errorf("签名URL未保留原始query前缀: %s", signed)
	}
	if !strings.Contains(signed, "&a_bogus=") {
		t.Errorf("首选方案应产出a_bogus参数: %s", signed)
	}
	if ua == "" {
		t.Error("UA未回传")
	}
}

type failingStrategy struct{}

func (failingStrategy) Name() string { return "failing" }
func (failingStrategy) Sign(baseURL, query string) (string, string, error) {
	return "", "", errors.New("方案不可用")
}

// TestSignerFallsBack 首选方案失败时静默降级到X-Bogus
func TestSignerFallsBack(t *testing.T) {
	s := NewSignerWith(
		failingStrategy{},
		&xbogusStrategy{signer: NewXBogus("")},
	)

	signed, _, err := s.Sign(testBaseURL, testQuery)
	if err != nil {
		t.Fatalf("降级后仍返回错误: %v", err)
	}
	if !strings.Contains(signed, "&X-Bogus=") {
		t.Errorf("兜底方案应产出X-Bogus参数: %s", signed)
	}
}

// TestSignerAllExhausted 所有方案失败时返回最后的错误,不产出未签名URL
func TestSignerAllExhausted(t *testing.T) {
	s := NewSignerWith(failingStrategy{}, failingStrategy{})

	signed, _, err := s.Sign(testBaseURL, testQuery)
	if err == nil {
		t.Fatal("方案链耗尽却没有返回错误")
	}
	if signed != "" {
		t.Errorf("方案链耗尽时不应返回URL: %s", signed)
	}
}

// TestABogusTokenShape a_bogus token的长度与字符集
func TestABogusTokenShape(t *testing.T) {
	fp := GenerateFingerprint("Edge", rand.New(rand.NewSource(42)))
	a := NewABogus(fp, "")
	a.Now = func() time.Time { return time.UnixMilli(1718000000000) }

	signedQuery, token, _, err := a.Generate(testQuery, "")
	if err != nil {
		t.Fatalf("Generate() 返回错误: %v", err)
	}
	if !strings.HasPrefix(signedQuery, testQuery+"&a_bogus=") {
		t.Errorf("签名query格式错误: %s", signedQuery)
	}
	if len(token) != abTokenLen {
		t.Errorf("token长度 = %d, 期望 %d", len(token), abTokenLen)
	}
	for _, ch := range token {
		if !strings.ContainsRune(abAlphabet, ch) {
			t.Errorf("token包含编码表以外的字符: %q", ch)
			break
		}
	}
}

// TestABogusVariesAcrossMillis 时间戳变化后token变化
func TestABogusVariesAcrossMillis(t *testing.T) {
	fp := GenerateFingerprint("Edge", rand.New(rand.NewSource(42)))
	a := NewABogus(fp, "")

	a.Now = func() time.Time { return time.UnixMilli(1718000000000) }
	_, token1, _, _ := a.Generate(testQuery, "")

	a.Now = func() time.Time { return time.UnixMilli(1718000001000) }
	_, token2, _, _ := a.Generate(testQuery, "")

	if token1 == token2 {
		t.Error("不同时间戳产出了相同的a_bogus")
	}
}

// TestABogusRequiresFingerprint 指纹缺失时返回错误触发降级
func TestABogusRequiresFingerprint(t *testing.T) {
	a := NewABogus(BrowserFingerprint{}, "")
	if _, _, _, err := a.Generate(testQuery, ""); err == nil {
		t.Error("空指纹应返回错误")
	}
}
