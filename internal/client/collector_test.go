package client

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/RecoveryAshes/dycrawl/internal/models"
)

// TestIDCollectorOrderAndDedup 首次出现顺序保留,重复丢弃
func TestIDCollectorOrderAndDedup(t *testing.T) {
	c := NewIDCollector()
	c.AddAll([]string{"111", "222", "111", "333", "222"})

	expected := []string{"111", "222", "333"}
	if !reflect.DeepEqual(c.IDs(), expected) {
		t.Errorf("IDs() = %v, 期望 %v", c.IDs(), expected)
	}
}

// TestIDCollectorConcurrentAdd 并发写入不丢失不重复
func TestIDCollectorConcurrentAdd(t *testing.T) {
	c := NewIDCollector()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Add(fmt.Sprintf("%d", i))
			}
		}()
	}
	wg.Wait()

	if c.Len() != 100 {
		t.Errorf("并发写入后数量 = %d, 期望100", c.Len())
	}
}

// TestMergeCollections 网络来源优先,DOM补充,全程保序去重
func TestMergeCollections(t *testing.T) {
	network := NewIDCollector()
	network.AddItem(&models.Aweme{AwemeID: "222", Desc: "网络作品222"})
	network.AddItem(&models.Aweme{AwemeID: "333", Desc: "网络作品333"})

	dom := NewIDCollector()
	dom.AddAll([]string{"111", "222", "444"})

	merged := MergeCollections(network, dom)

	expected := []string{"222", "333", "111", "444"}
	if !reflect.DeepEqual(merged.IDs, expected) {
		t.Errorf("合并顺序 = %v, 期望 %v", merged.IDs, expected)
	}

	// 网络来源携带完整详情
	if merged.Items["222"] == nil || merged.Items["333"] == nil {
		t.Error("网络来源的id应携带完整详情")
	}
	// DOM来源需要后续逐id补抓
	if merged.Items["111"] != nil || merged.Items["444"] != nil {
		t.Error("仅DOM可见的id不应携带详情")
	}
}
