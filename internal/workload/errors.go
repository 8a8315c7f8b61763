package workload

import "codeberg.org/mutker/cpubench/internal/errors"

const (
	ErrInvalidKind   = errors.ErrInvalidWorkloadKind
	ErrInvalidParams = errors.ErrInvalidParams
	ErrUnsorted      = errors.ErrorCode("workload_sort_mismatch")
)
