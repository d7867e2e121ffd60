package device

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostInfo returns facts about the machine for run metadata. Facts that
// cannot be read are omitted.
func HostInfo() map[string]any {
	info := map[string]any{
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"go_version": runtime.Version(),
		"num_cpu":    runtime.NumCPU(),
	}
	if name := cpuName(); name != "" {
		info["cpu_model"] = name
	}
	if cores, err := cpu.Counts(false); err == nil && cores > 0 {
		info["physical_cores"] = cores
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info["memory_total_bytes"] = vm.Total
	}
	return info
}

// cpuName returns the CPU model name, or "cpu" when it cannot be read.
func cpuName() string {
	stats, err := cpu.Info()
	if err != nil || len(stats) == 0 || stats[0].ModelName == "" {
		return "cpu"
	}
	return stats[0].ModelName
}
