package telemetry

import "codeberg.org/mutker/cpubench/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig   = errors.ErrorCode("telemetry_invalid_config")
	ErrInvalidInterval = errors.ErrInvalidInterval

	// Collection Errors
	ErrSamplingMiss = errors.ErrSamplingMiss
	ErrExportFailed = errors.ErrorCode("telemetry_export_failed")
)
