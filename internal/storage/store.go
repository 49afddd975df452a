package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/RecoveryAshes/dycrawl/internal/models"
	"github.com/RecoveryAshes/dycrawl/internal/utils"
)

// SeenRecord 已抓取作品的去重记录
type SeenRecord struct {
	AwemeID    string `json:"aweme_id"`
	Title      string `json:"title,omitempty"`
	CreateTime int64  `json:"create_time"`
	SeenAt     int64  `json:"seen_at"`
}

// Store 增量去重存储
// 按scope(作者/合集/音乐id)分桶记录已抓取的作品,JSON文件持久化
// 写入发生在页面抓取成功之后,而不是下载完成之后
type Store struct {
	path string

	mu     sync.RWMutex
	scopes map[string]map[string]SeenRecord // scope -> aweme_id -> record
	dirty  bool
}

// Open 打开或创建去重存储
// 文件损坏时从空状态开始并告警,不中断运行
func Open(path string) (*Store, error) {
	s := &Store{
		path:   path,
		scopes: make(map[string]map[string]SeenRecord),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取去重存储失败: %w", err)
	}
	if err := json.Unmarshal(data, &s.scopes); err != nil {
		utils.Warnf("去重存储文件损坏,重置为空: %v", err)
		s.scopes = make(map[string]map[string]SeenRecord)
	}
	return s, nil
}

// IsSeen 作品是否已记录
func (s *Store) IsSeen(scope, awemeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.scopes[scope]
	if !ok {
		return false
	}
	_, seen := bucket[awemeID]
	return seen
}

// RecordSeen 记录一个已抓取的作品
func (s *Store) RecordSeen(scope string, item *models.Aweme) {
	if item == nil || item.AwemeID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.scopes[scope]
	if !ok {
		bucket = make(map[string]SeenRecord)
		s.scopes[scope] = bucket
	}
	bucket[item.AwemeID] = SeenRecord{
		AwemeID:    item.AwemeID,
		Title:      item.Desc,
		CreateTime: item.CreateTime,
		SeenAt:     time.Now().Unix(),
	}
	s.dirty = true
}

// LatestSeenTime 返回scope下最新作品的创建时间戳
// 没有记录时第二个返回值为false
func (s *Store) LatestSeenTime(scope string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.scopes[scope]
	if !ok || len(bucket) == 0 {
		return 0, false
	}
	var latest int64
	for _, rec := range bucket {
		if rec.CreateTime > latest {
			latest = rec.CreateTime
		}
	}
	return latest, true
}

// Count 返回scope下的记录数
func (s *Store) Count(scope string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scopes[scope])
}

// Flush 将状态写回磁盘,临时文件+重命名保证原子性
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	data, err := json.MarshalIndent(s.scopes, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化去重存储失败: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建存储目录失败: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("替换存储文件失败: %w", err)
	}
	s.dirty = false
	return nil
}
