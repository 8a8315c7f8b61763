package executor

import "codeberg.org/mutker/cpubench/internal/errors"

const (
	ErrWorkerFailure = errors.ErrWorkerFailure
	ErrWorkerPanic   = errors.ErrorCode("executor_worker_panic")
)
