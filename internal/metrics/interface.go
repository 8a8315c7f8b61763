package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/cpubench/internal/telemetry"
)

// Collector persists telemetry samples and finished sessions. It is write
// only; nothing in cpubench reads the database back.
type Collector interface {
	RecordSample(ctx context.Context, s telemetry.Sample) error
	RecordSession(ctx context.Context, rec *SessionRecord) error
	Close() error
	Enabled() bool
}

// Repository defines the interface for metrics data storage
type Repository interface {
	RecordSample(s telemetry.Sample) error
	RecordSession(rec *SessionRecord) error
	Close() error
}

// SessionRecord is the flattened summary of one finished test.
type SessionRecord struct {
	TestID               string
	Kind                 string
	Status               string
	StartedAt            time.Time
	FinishedAt           time.Time
	ExecutionTimeSeconds float64
	Throughput           float64
	ThroughputUnit       string
	CPUCoresUsed         int
	SampleCount          int
	AvgCPUPercent        float64
	PeakCPUPercent       float64
	PeakMemPercent       float64
	PeakTemperature      *float64
	Error                string
}
