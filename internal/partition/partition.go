// Package partition splits a problem size into contiguous per-worker ranges.
package partition

import "codeberg.org/mutker/cpubench/internal/errors"

// Range is the half-open span [Start, End) assigned to worker Index.
type Range struct {
	Index int
	Start int
	End   int
}

// Len returns the number of items in the range.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Last returns the inclusive upper bound of the range.
func (r Range) Last() int {
	return r.End - 1
}

// Split divides [0, total) into workers contiguous ranges. Every range gets
// total/workers items and the last one additionally takes the remainder.
func Split(total, workers int) ([]Range, error) {
	return Span(0, total, workers)
}

// Span divides [lower, lower+total) the same way Split does.
func Span(lower, total, workers int) ([]Range, error) {
	errFactory := errors.New()

	if workers < 1 {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "workers must be at least 1")
	}
	if total < 0 {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "total must not be negative")
	}

	chunk := total / workers
	ranges := make([]Range, workers)
	for i := range ranges {
		start := lower + i*chunk
		end := start + chunk
		if i == workers-1 {
			end = lower + total
		}
		ranges[i] = Range{Index: i, Start: start, End: end}
	}

	return ranges, nil
}

// Inclusive divides the closed interval [lower, upper]. An empty interval
// (upper < lower) yields workers empty ranges.
func Inclusive(lower, upper, workers int) ([]Range, error) {
	total := upper - lower + 1
	if total < 0 {
		total = 0
	}
	return Span(lower, total, workers)
}

// Shares returns workers equal shares of total. The remainder of the
// integer division is dropped, so the shares may sum to less than total.
func Shares(total, workers int) ([]int, error) {
	errFactory := errors.New()

	if workers < 1 {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "workers must be at least 1")
	}
	if total < 0 {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "total must not be negative")
	}

	shares := make([]int, workers)
	for i := range shares {
		shares[i] = total / workers
	}
	return shares, nil
}
