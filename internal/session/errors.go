package session

import "codeberg.org/mutker/cpubench/internal/errors"

const (
	ErrAlreadyRunning = errors.ErrAlreadyRunning
	ErrInvalidKind    = errors.ErrInvalidWorkloadKind
	ErrWorkerFailure  = errors.ErrWorkerFailure
	ErrNotFound       = errors.ErrResourceNotFound
	ErrInvalidConfig  = errors.ErrorCode("session_invalid_config")
)
