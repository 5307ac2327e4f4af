package models

import "time"

type SystemStats struct {
	CPU    CPUStats      `json:"cpu"`
	Memory MemoryStats   `json:"memory"`
	Uptime time.Duration `json:"uptime"`
}

type CPUStats struct {
	Usage float64 `json:"usage"`
	Cores int     `json:"cores"`
}

type MemoryStats struct {
	Total        uint64  `json:"total"`
	Used         uint64  `json:"used"`
	Available    uint64  `json:"available"`
	UsagePercent float64 `json:"usage_percent"`
}
