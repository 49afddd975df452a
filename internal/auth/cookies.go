package auth

import (
	"strings"
)

// invalidCookieNameChars RFC6265 token分隔符,Cookie名称中不允许出现
const invalidCookieNameChars = "()<>@,;:\\\"/[]?={} \t\r\n"

// IsValidCookieName 检查Cookie名称是否符合RFC6265 token规则
// 仅允许可打印ASCII(33-126),且不含分隔符
func IsValidCookieName(name string) bool {
	if name == "" {
		return false
	}
	for _, ch := range name {
		if ch < 33 || ch > 126 {
			return false
		}
		if strings.ContainsRune(invalidCookieNameChars, ch) {
			return false
		}
	}
	return true
}

// SanitizeCookies 清洗Cookie映射,静默丢弃非法名称
// 对已清洗的映射再次调用结果不变
func SanitizeCookies(cookies map[string]string) map[string]string {
	sanitized := make(map[string]string, len(cookies))
	for rawKey, rawValue := range cookies {
		key := strings.TrimSpace(rawKey)
		if !IsValidCookieName(key) {
			continue
		}
		sanitized[key] = strings.TrimSpace(rawValue)
	}
	return sanitized
}

// ParseCookieHeader 解析Cookie请求头字符串为映射
// 容忍多余的分号与缺少=的片段
func ParseCookieHeader(header string) map[string]string {
	parsed := make(map[string]string)
	if header == "" {
		return parsed
	}
	for _, item := range strings.Split(header, ";") {
		item = strings.TrimSpace(item)
		if item == "" || !strings.Contains(item, "=") {
			continue
		}
		parts := strings.SplitN(item, "=", 2)
		key := strings.TrimSpace(parts[0])
		if !IsValidCookieName(key) {
			continue
		}
		parsed[key] = strings.TrimSpace(parts[1])
	}
	return parsed
}

// FormatCookieHeader 将Cookie映射拼装为请求头字符串
func FormatCookieHeader(cookies map[string]string) string {
	parts := make([]string, 0, len(cookies))
	for name, value := range cookies {
		parts = append(parts, name+"="+value)
	}
	return strings.Join(parts, "; ")
}
