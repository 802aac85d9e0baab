package bot

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// hostStatus builds the owner-only host report: CPU load, memory, and disk
// usage of the machine running the relay.
func hostStatus() string {
	var sb strings.Builder
	sb.WriteString("Host status:\n")

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		sb.WriteString(fmt.Sprintf("  CPU: %.1f%%\n", percents[0]))
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		sb.WriteString(fmt.Sprintf("  Memory: %s / %s (%.1f%%)\n",
			formatBytes(vm.Used), formatBytes(vm.Total), vm.UsedPercent))
	}

	if du, err := disk.Usage("/"); err == nil {
		sb.WriteString(fmt.Sprintf("  Disk: %s / %s (%.1f%%)\n",
			formatBytes(du.Used), formatBytes(du.Total), du.UsedPercent))
	}

	return sb.String()
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
