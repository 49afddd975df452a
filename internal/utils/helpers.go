package utils

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// ReadLinksFromFile 从文件中读取分享链接列表
// 跳过空行与#注释行,无效链接只警告不中断
func ReadLinksFromFile(filepath string) ([]string, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("打开链接文件失败: %w", err)
	}
	defer file.Close()

	links := make([]string, 0)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// 分享文案里经常混着中文说明,只保留其中的URL部分
		if extracted := ExtractURL(line); extracted != "" {
			line = extracted
		}

		if err := ValidateURL(line); err != nil {
			Warnf("跳过无效链接 (行 %d): %s - %v", lineNum, line, err)
			continue
		}

		links = append(links, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取链接文件失败: %w", err)
	}

	if len(links) == 0 {
		return nil, fmt.Errorf("链接文件中没有有效的链接")
	}

	Infof("从文件加载了 %d 个链接", len(links))
	return links, nil
}

// ExtractURL 从分享文案中提取第一个http(s)链接
func ExtractURL(text string) string {
	idx := strings.Index(text, "http://")
	if httpsIdx := strings.Index(text, "https://"); httpsIdx != -1 && (idx == -1 || httpsIdx < idx) {
		idx = httpsIdx
	}
	if idx == -1 {
		return ""
	}
	rest := text[idx:]
	// 链接到第一个空白或中文字符为止
	for i, r := range rest {
		if r == ' ' || r == '\t' || r == '，' || r == ',' || r > 0x2E7F {
			return rest[:i]
		}
	}
	return rest
}

// ValidateURL 验证URL格式
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("URL格式无效: %w", err)
	}

	if parsed.Scheme == "" {
		return fmt.Errorf("URL缺少协议(http/https)")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL协议必须是http或https")
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL缺少主机名")
	}

	return nil
}

// SanitizeFilename 清理文件名中的非法字符,用于保存作品标题
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_",
		"|", "_", "\n", " ", "\r", " ", "\t", " ",
	)
	cleaned := strings.TrimSpace(replacer.Replace(name))
	if cleaned == "" {
		return "untitled"
	}
	// 标题过长会触发文件系统限制,截断到80个rune
	runes := []rune(cleaned)
	if len(runes) > 80 {
		cleaned = string(runes[:80])
	}
	return cleaned
}
