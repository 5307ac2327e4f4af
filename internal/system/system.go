package system

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"proctop/internal/models"
)

// Reader produces the system-wide readout shown in the header. CPU usage is
// the same differential convention as per-process sampling: the first Stats
// call establishes a baseline and reports 0.
type Reader struct {
	bootTime time.Time
	cores    int
}

func NewReader() *Reader {
	r := &Reader{cores: 1}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		r.cores = n
	}
	if bt, err := host.BootTime(); err == nil {
		r.bootTime = time.Unix(int64(bt), 0)
	}
	// Prime the CPU delta so the first real reading isn't zero.
	_, _ = cpu.Percent(0, false)
	return r
}

func (r *Reader) Stats() models.SystemStats {
	stats := models.SystemStats{
		CPU: models.CPUStats{Cores: r.cores},
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		stats.CPU.Usage = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.Memory = models.MemoryStats{
			Total:        vm.Total,
			Used:         vm.Used,
			Available:    vm.Available,
			UsagePercent: vm.UsedPercent,
		}
	}
	if !r.bootTime.IsZero() {
		stats.Uptime = time.Since(r.bootTime).Truncate(time.Second)
	}
	return stats
}
