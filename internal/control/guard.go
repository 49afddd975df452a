package control

import (
	"runtime"

	"github.com/RecoveryAshes/dycrawl/internal/utils"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceGuard 下载并发守卫
// 在工作池启动前按可用内存与CPU负载对并发数做一次性压限
type ResourceGuard struct {
	// SafetyReserveMemory 保留给系统的内存(字节)
	SafetyReserveMemory uint64
	// WorkerMemoryUsage 单个下载worker的内存估算(字节)
	WorkerMemoryUsage uint64
	// CPULoadThreshold CPU负载阈值(%),超过时并发减半
	CPULoadThreshold float64
}

// NewResourceGuard 创建默认参数的守卫
func NewResourceGuard() *ResourceGuard {
	return &ResourceGuard{
		SafetyReserveMemory: 512 * 1024 * 1024,
		WorkerMemoryUsage:   64 * 1024 * 1024,
		CPULoadThreshold:    85,
	}
}

// CapWorkers 返回不超过资源承载能力的worker数量,至少为1
func (g *ResourceGuard) CapWorkers(requested int) int {
	if requested < 1 {
		requested = 1
	}
	capped := requested

	vmStat, err := mem.VirtualMemory()
	if err != nil {
		utils.Warnf("获取系统内存失败,跳过内存压限: %v", err)
	} else if vmStat.Available > g.SafetyReserveMemory {
		byMemory := int((vmStat.Available - g.SafetyReserveMemory) / g.WorkerMemoryUsage)
		if byMemory < 1 {
			byMemory = 1
		}
		if byMemory < capped {
			utils.Warnf("可用内存有限(%.0fMB), 下载并发 %d -> %d",
				float64(vmStat.Available)/(1024*1024), capped, byMemory)
			capped = byMemory
		}
	} else {
		utils.Warnf("可用内存低于安全保留值,下载并发降为1")
		capped = 1
	}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		if percentages[0] > g.CPULoadThreshold {
			halved := capped / 2
			if halved < 1 {
				halved = 1
			}
			if halved < capped {
				utils.Warnf("CPU负载过高(%.1f%%), 下载并发 %d -> %d", percentages[0], capped, halved)
				capped = halved
			}
		}
	}

	if byCPU := runtime.NumCPU() * 2; byCPU < capped {
		capped = byCPU
	}
	if capped < 1 {
		capped = 1
	}
	return capped
}
