// Package telemetry samples system metrics in the background into a
// bounded history and reduces it to windowed averages and peaks.
package telemetry

import (
	"context"
	"time"

	"codeberg.org/mutker/cpubench/internal/sensor"
)

// Sample is one timestamped reading. It is never mutated after creation.
type Sample struct {
	Timestamp    time.Time `json:"timestamp"`
	CPUPercent   float64   `json:"cpu_percent"`
	CPUFreqMHz   float64   `json:"cpu_freq_mhz"`
	MemPercent   float64   `json:"memory_percent"`
	MemUsedGB    float64   `json:"memory_used_gb"`
	MemTotalGB   float64   `json:"memory_total_gb"`
	TemperatureC *float64  `json:"temperature,omitempty"`
}

func newSample(ts time.Time, r sensor.Reading) Sample {
	s := Sample{
		Timestamp:  ts,
		CPUPercent: r.CPUPercent,
		CPUFreqMHz: r.CPUFreqMHz,
		MemPercent: r.MemPercent,
		MemUsedGB:  r.MemUsedGB,
		MemTotalGB: r.MemTotalGB,
	}
	if r.TemperatureC != nil {
		t := *r.TemperatureC
		s.TemperatureC = &t
	}
	return s
}

// AggregateWindow summarises the samples of a trailing time span.
// AvgTemperature and MaxTemperature are nil when no sample in the window
// carried a temperature.
type AggregateWindow struct {
	DurationSeconds float64  `json:"duration_seconds"`
	SampleCount     int      `json:"sample_count"`
	AvgCPUPercent   float64  `json:"avg_cpu_percent"`
	AvgCPUFreq      float64  `json:"avg_cpu_freq"`
	AvgMemPercent   float64  `json:"avg_memory_percent"`
	AvgTemperature  *float64 `json:"avg_temperature,omitempty"`
	MaxCPUPercent   float64  `json:"max_cpu_percent"`
	MaxMemPercent   float64  `json:"max_memory_percent"`
	MaxTemperature  *float64 `json:"max_temperature,omitempty"`
}

// Peaks holds the maxima over a whole history.
type Peaks struct {
	CPUPercent   float64  `json:"peak_cpu_percent"`
	MemPercent   float64  `json:"peak_memory_percent"`
	TemperatureC *float64 `json:"peak_temperature,omitempty"`
}

// Recorder receives every sample appended to the history. Implementations
// must not block the sampling loop for long.
type Recorder interface {
	RecordSample(ctx context.Context, s Sample) error
}
