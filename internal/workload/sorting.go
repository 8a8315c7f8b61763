package workload

import (
	"cmp"
	"context"
	"math/rand"
	"slices"
	"time"

	"codeberg.org/mutker/cpubench/internal/errors"
	"codeberg.org/mutker/cpubench/internal/executor"
)

const maxSortValue = 1000000

type SortingParams struct {
	ArraySize         int `mapstructure:"array_size" json:"array_size"`
	ParallelDepth     int `mapstructure:"parallel_depth" json:"parallel_depth"`
	ParallelThreshold int `mapstructure:"parallel_threshold" json:"parallel_threshold"`
}

type SortingResult struct {
	ArraySize         int     `json:"array_size"`
	ElementsPerSecond float64 `json:"elements_per_second"`
	IsSorted          bool    `json:"is_sorted"`
}

type sorting struct {
	params SortingParams
}

func newSorting(p SortingParams) (Workload, error) {
	if p.ArraySize < 0 {
		return nil, invalidParams("array_size must not be negative")
	}
	if p.ParallelDepth < 0 {
		return nil, invalidParams("parallel_depth must not be negative")
	}
	if p.ParallelThreshold < 0 {
		return nil, invalidParams("parallel_threshold must not be negative")
	}
	return &sorting{params: p}, nil
}

func (*sorting) Kind() Kind    { return KindSorting }
func (w *sorting) Params() any { return w.params }

func (w *sorting) Run(ctx context.Context, pool *executor.Pool) (*Result, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	input := make([]int, w.params.ArraySize)
	for i := range input {
		input[i] = rng.Intn(maxSortValue) + 1
	}

	elapsed := stopwatch()
	sorter := NewSorter(pool, w.params.ParallelDepth, w.params.ParallelThreshold)
	sorted, err := sorter.Sort(ctx, input)
	if err != nil {
		return nil, err
	}
	took := elapsed()

	reference := slices.Clone(input)
	slices.Sort(reference)
	ok := slices.Equal(sorted, reference)
	if !ok {
		return nil, errors.New().WithData(ErrUnsorted, len(input))
	}

	res := newResult("Parallel Merge Sort", "elements/s", pool.Size(), took, float64(len(input)))
	res.Sorting = &SortingResult{
		ArraySize:         len(input),
		ElementsPerSecond: res.Throughput,
		IsSorted:          ok,
	}
	return res, nil
}

// Sorter is a fork-join merge sort. Halves are forked onto the pool while
// the recursion depth is below maxDepth and the slice is larger than
// threshold; deeper or smaller calls recurse sequentially.
type Sorter struct {
	pool      *executor.Pool
	maxDepth  int
	threshold int
}

func NewSorter(pool *executor.Pool, maxDepth, threshold int) *Sorter {
	return &Sorter{pool: pool, maxDepth: maxDepth, threshold: threshold}
}

// Sort returns a sorted copy of in.
func (s *Sorter) Sort(ctx context.Context, in []int) ([]int, error) {
	return s.sort(ctx, in, 0)
}

func (s *Sorter) sort(ctx context.Context, in []int, depth int) ([]int, error) {
	if len(in) <= 1 {
		return slices.Clone(in), nil
	}
	mid := len(in) / 2

	if len(in) <= s.threshold || depth >= s.maxDepth {
		return mergeSort(in), nil
	}

	var left, right []int
	err := s.pool.Fork(ctx,
		func(ctx context.Context) (err error) {
			left, err = s.sort(ctx, in[:mid], depth+1)
			return err
		},
		func(ctx context.Context) (err error) {
			right, err = s.sort(ctx, in[mid:], depth+1)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	return Merge(left, right), nil
}

func mergeSort(in []int) []int {
	if len(in) <= 1 {
		return slices.Clone(in)
	}
	mid := len(in) / 2
	return Merge(mergeSort(in[:mid]), mergeSort(in[mid:]))
}

// Merge combines two sorted slices.
func Merge[T cmp.Ordered](left, right []T) []T {
	return MergeFunc(left, right, cmp.Less[T])
}

// MergeFunc is a stable two-pointer merge: on equal keys the element from
// left is emitted first.
func MergeFunc[T any](left, right []T, less func(a, b T) bool) []T {
	out := make([]T, 0, len(left)+len(right))
	i, j := 0, 0
	for i < len(left) && j < len(right) {
		if !less(right[j], left[i]) {
			out = append(out, left[i])
			i++
		} else {
			out = append(out, right[j])
			j++
		}
	}
	out = append(out, left[i:]...)
	return append(out, right[j:]...)
}
