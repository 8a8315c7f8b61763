package workload

import (
	"context"
	"math/big"

	"codeberg.org/mutker/cpubench/internal/executor"
)

// indicesPerWorker controls how many Fibonacci indices each worker evaluates.
const indicesPerWorker = 10

type FibonacciParams struct {
	MaxN int `mapstructure:"max_n" json:"max_n"`
}

type FibonacciResult struct {
	MaxNumber             int     `json:"max_number"`
	Calculations          int     `json:"calculations"`
	CalculationsPerSecond float64 `json:"calculations_per_second"`
	LargestBits           int     `json:"largest_bits"`
}

type fibonacci struct {
	params FibonacciParams
}

func newFibonacci(p FibonacciParams) (Workload, error) {
	if p.MaxN < 1 {
		return nil, invalidParams("max_n must be at least 1")
	}
	return &fibonacci{params: p}, nil
}

func (*fibonacci) Kind() Kind    { return KindFibonacci }
func (w *fibonacci) Params() any { return w.params }

func (w *fibonacci) Run(ctx context.Context, pool *executor.Pool) (*Result, error) {
	indices := SampleIndices(w.params.MaxN, pool.Size())

	elapsed := stopwatch()
	bits, err := executor.Run(ctx, pool, indices, func(_ context.Context, n int) (int, error) {
		return Fib(n).BitLen(), nil
	})
	if err != nil {
		return nil, err
	}

	largest := 0
	for _, b := range bits {
		largest = max(largest, b)
	}

	res := newResult("Fibonacci Sequence", "calculations/s", pool.Size(), elapsed(), float64(len(indices)))
	res.Fibonacci = &FibonacciResult{
		MaxNumber:             w.params.MaxN,
		Calculations:          len(indices),
		CalculationsPerSecond: res.Throughput,
		LargestBits:           largest,
	}
	return res, nil
}

// SampleIndices picks roughly indicesPerWorker·workers evenly spaced
// indices in [1, maxN].
func SampleIndices(maxN, workers int) []int {
	if maxN < 1 {
		return nil
	}
	step := maxN / (workers * indicesPerWorker)
	if step < 1 {
		step = 1
	}
	indices := make([]int, 0, maxN/step+1)
	for n := 1; n <= maxN; n += step {
		indices = append(indices, n)
	}
	return indices
}

// Fib returns the n-th Fibonacci number, computed iteratively in O(n)
// additions with two accumulators.
func Fib(n int) *big.Int {
	if n <= 1 {
		return big.NewInt(int64(max(n, 0)))
	}
	a, b := big.NewInt(0), big.NewInt(1)
	for i := 2; i <= n; i++ {
		a.Add(a, b)
		a, b = b, a
	}
	return b
}
