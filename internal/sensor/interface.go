// Package sensor is the boundary to the operating system's resource
// counters. The telemetry sampler consumes it only through Provider.
package sensor

import (
	"context"
	"time"
)

// Provider acquires point-in-time readings and static system information.
// Implementations must be safe for concurrent use.
type Provider interface {
	Sample(ctx context.Context) (Reading, error)
	SystemInfo(ctx context.Context) (SystemInfo, error)
}

// Reading is one raw sensor acquisition. TemperatureC is nil when no
// thermal sensor is readable.
type Reading struct {
	CPUPercent   float64
	CPUFreqMHz   float64
	MemPercent   float64
	MemUsedGB    float64
	MemTotalGB   float64
	TemperatureC *float64
}

type SystemInfo struct {
	CPU         CPUInfo    `json:"cpu"`
	Memory      MemoryInfo `json:"memory"`
	Disk        DiskInfo   `json:"disk"`
	GPUs        []GPUInfo  `json:"gpus,omitempty"`
	BootTime    time.Time  `json:"boot_time"`
	UptimeHours float64    `json:"uptime_hours"`
}

type CPUInfo struct {
	PhysicalCores  int       `json:"physical_cores"`
	LogicalCores   int       `json:"logical_cores"`
	FreqMHz        float64   `json:"cpu_freq_mhz"`
	Model          string    `json:"model,omitempty"`
	PercentPerCore []float64 `json:"cpu_percent_per_core,omitempty"`
}

type MemoryInfo struct {
	TotalGB     float64 `json:"total_gb"`
	AvailableGB float64 `json:"available_gb"`
	UsedGB      float64 `json:"used_gb"`
	Percent     float64 `json:"percent"`
}

type DiskInfo struct {
	Path    string  `json:"path"`
	TotalGB float64 `json:"total_gb"`
	UsedGB  float64 `json:"used_gb"`
	FreeGB  float64 `json:"free_gb"`
	Percent float64 `json:"percent"`
}

type GPUInfo struct {
	Index        int      `json:"index"`
	Name         string   `json:"name"`
	MemoryMB     uint64   `json:"memory_mb"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
}

const bytesPerGB = 1024 * 1024 * 1024

func toGB(b uint64) float64 {
	return float64(b) / bytesPerGB
}
