package utils

import (
	"sort"
	"strings"
)

var (
	// SensitiveCookieKeywords 敏感Cookie名称关键字 (用于脱敏)
	SensitiveCookieKeywords = []string{
		"sessionid",
		"sid_",
		"passport",
		"mstoken",
		"token",
		"ttwid",
		"odin_tt",
	}
)

// CookieRedactor Cookie脱敏器
// 负责在日志输出前遮蔽会话类Cookie的值
type CookieRedactor struct {
	sensitiveKeywords []string
}

// NewCookieRedactor 创建Cookie脱敏器
func NewCookieRedactor() *CookieRedactor {
	return &CookieRedactor{
		sensitiveKeywords: SensitiveCookieKeywords,
	}
}

// IsSensitive 检查Cookie名称是否敏感
func (cr *CookieRedactor) IsSensitive(name string) bool {
	nameLower := strings.ToLower(name)
	for _, keyword := range cr.sensitiveKeywords {
		if strings.Contains(nameLower, keyword) {
			return true
		}
	}
	return false
}

// RedactValue 脱敏单个Cookie值
// 长值保留前4位+后4位,短值完全隐藏
func (cr *CookieRedactor) RedactValue(name, value string) string {
	if !cr.IsSensitive(name) {
		return value
	}
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// Redact 脱敏整个Cookie映射,返回安全的map (用于日志)
func (cr *CookieRedactor) Redact(cookies map[string]string) map[string]string {
	result := make(map[string]string, len(cookies))
	for name, value := range cookies {
		result[name] = cr.RedactValue(name, value)
	}
	return result
}

// RedactToString 脱敏Cookie映射并返回格式化字符串 (用于日志输出)
// 名称排序保证输出稳定
func (cr *CookieRedactor) RedactToString(cookies map[string]string) string {
	redacted := cr.Redact(cookies)
	names := make([]string, 0, len(redacted))
	for name := range redacted {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		parts = append(parts, name+"="+redacted[name])
	}
	return strings.Join(parts, "; ")
}
