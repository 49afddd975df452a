package client

import (
	"sync"

	"github.com/RecoveryAshes/dycrawl/internal/models"
)

// IDCollector 保序去重的作品id收集器
// 浏览器兜底采集中网络拦截回调与滚动提取并发写入,单锁保护
type IDCollector struct {
	mu    sync.Mutex
	order []string
	seen  map[string]struct{}
	items map[string]*models.Aweme
}

// NewIDCollector 创建收集器
func NewIDCollector() *IDCollector {
	return &IDCollector{
		seen:  make(map[string]struct{}),
		items: make(map[string]*models.Aweme),
	}
}

// Add 追加一个id,保留首次出现顺序;新id返回true
func (c *IDCollector) Add(id string) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[id]; dup {
		return false
	}
	c.seen[id] = struct{}{}
	c.order = append(c.order, id)
	return true
}

// AddAll 批量追加,返回新增数量
func (c *IDCollector) AddAll(ids []string) int {
	added := 0
	for _, id := range ids {
		if c.Add(id) {
			added++
		}
	}
	return added
}

// AddItem 追加id并附带完整作品详情
func (c *IDCollector) AddItem(item *models.Aweme) bool {
	if item == nil || item.AwemeID == "" {
		return false
	}
	isNew := c.Add(item.AwemeID)
	c.mu.Lock()
	if _, exists := c.items[item.AwemeID]; !exists {
		c.items[item.AwemeID] = item
	}
	c.mu.Unlock()
	return isNew
}

// IDs 返回首次出现顺序的id快照
func (c *IDCollector) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Item 返回id对应的完整详情,没有时为nil
func (c *IDCollector) Item(id string) *models.Aweme {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items[id]
}

// Items 返回id到详情的快照
func (c *IDCollector) Items() map[string]*models.Aweme {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*models.Aweme, len(c.items))
	for id, item := range c.items {
		out[id] = item
	}
	return out
}

// Len 当前收集的id数量
func (c *IDCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// BrowserCollection 浏览器兜底采集的合并结果
// 网络拦截来源的id排在前面并携带完整详情,仅DOM可见的id排在后面
type BrowserCollection struct {
	IDs   []string
	Items map[string]*models.Aweme
}

// MergeCollections 合并网络拦截与DOM提取两路id
// 两路各自保持首次出现顺序,网络来源优先,重复id只保留一次
func MergeCollections(network, dom *IDCollector) BrowserCollection {
	merged := BrowserCollection{Items: network.Items()}
	seen := make(map[string]struct{})

	for _, id := range append(network.IDs(), dom.IDs()...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		merged.IDs = append(merged.IDs, id)
	}
	return merged
}
