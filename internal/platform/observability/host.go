package observability

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HostStats is a point-in-time view of the machine and this process.
type HostStats struct {
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryTotalBytes uint64  `json:"memory_total_bytes"`
	MemoryUsedBytes  uint64  `json:"memory_used_bytes"`
	MemoryPercent    float64 `json:"memory_percent"`
	ProcessRSSBytes  uint64  `json:"process_rss_bytes"`
	Goroutines       int     `json:"goroutines"`
	NumCPU           int     `json:"num_cpu"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// CollectHostStats samples CPU over a short interval. Individual probe
// failures leave the corresponding fields zero.
func CollectHostStats(ctx context.Context) HostStats {
	stats := HostStats{
		Goroutines:    runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		UptimeSeconds: Uptime().Seconds(),
	}

	if pct, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryTotalBytes = vm.Total
		stats.MemoryUsedBytes = vm.Used
		stats.MemoryPercent = vm.UsedPercent
	}
	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
			stats.ProcessRSSBytes = info.RSS
		}
	}
	return stats
}
