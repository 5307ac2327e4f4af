package models

import "strings"

// Trend says whether a metric moved significantly since the previous sample.
type Trend int

const (
	TrendStable Trend = iota
	TrendRising
	TrendFalling
)

// Indicator returns the single-character marker shown next to a metric.
func (t Trend) Indicator() string {
	switch t {
	case TrendRising:
		return "▲"
	case TrendFalling:
		return "▼"
	}
	return ""
}

type SortKey int

const (
	SortCPU SortKey = iota
	SortMemory
	SortPID
	SortName
)

func (k SortKey) String() string {
	switch k {
	case SortMemory:
		return "memory"
	case SortPID:
		return "pid"
	case SortName:
		return "name"
	}
	return "cpu"
}

// ParseSortKey maps a config/CLI string to a SortKey, defaulting to CPU.
func ParseSortKey(s string) SortKey {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memory", "mem":
		return SortMemory
	case "pid":
		return SortPID
	case "name":
		return SortName
	}
	return SortCPU
}

// VisibleRange is the half-open row window [Start, End) currently on screen.
// The zero value means the caller reported no viewport.
type VisibleRange struct {
	Start int
	End   int
}

func (r VisibleRange) IsZero() bool { return r.Start == 0 && r.End == 0 }

// ProcessRecord is one live process as held by the cache. PIDs are reused by
// the OS, so a PID only identifies a process while it stays in the cache.
type ProcessRecord struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
	Status     string  `json:"status"`

	IsNew       bool  `json:"is_new"`
	CPUTrend    Trend `json:"cpu_trend"`
	MemoryTrend Trend `json:"memory_trend"`

	PreviousCPU    float64 `json:"previous_cpu"`
	PreviousMemory float64 `json:"previous_memory"`
	HasPrevious    bool    `json:"has_previous"`
}

// ThreadRecord is fetched on demand for the threads dialog, never cached.
type ThreadRecord struct {
	ThreadID   int32   `json:"thread_id"`
	UserTime   float64 `json:"user_time"`
	SystemTime float64 `json:"system_time"`
}
