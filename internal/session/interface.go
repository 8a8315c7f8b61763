// Package session runs one benchmark at a time, wrapping every workload in
// a telemetry capture and archiving the merged outcome.
package session

import (
	"time"

	"codeberg.org/mutker/cpubench/internal/telemetry"
	"codeberg.org/mutker/cpubench/internal/workload"
)

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Monitoring is the telemetry attached to a finished session. The window
// fields are absent when no sample was captured during the test.
type Monitoring struct {
	*telemetry.AggregateWindow
	telemetry.Peaks

	TestDurationSeconds float64   `json:"test_duration_seconds"`
	TestStartTime       time.Time `json:"test_start_time"`
	TestEndTime         time.Time `json:"test_end_time"`
}

// Session is one test from start request to archived outcome.
type Session struct {
	TestID     string           `json:"test_id"`
	Kind       workload.Kind    `json:"kind"`
	Params     any              `json:"params"`
	Status     State            `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Result     *workload.Result `json:"result,omitempty"`
	Monitoring *Monitoring      `json:"monitoring,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Status is the coordinator's externally visible state. Realtime is set
// while a test runs; Last holds the most recent finished session otherwise.
type Status struct {
	State          State             `json:"state"`
	TestID         string            `json:"test_id,omitempty"`
	Kind           workload.Kind     `json:"kind,omitempty"`
	ElapsedSeconds float64           `json:"elapsed_seconds,omitempty"`
	Realtime       *telemetry.Sample `json:"realtime,omitempty"`
	Last           *Session          `json:"last,omitempty"`
}
