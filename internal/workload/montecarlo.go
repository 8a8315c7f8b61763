package workload

import (
	"context"
	"math"
	"math/rand"
	"time"

	"codeberg.org/mutker/cpubench/internal/executor"
	"codeberg.org/mutker/cpubench/internal/partition"
)

type MonteCarloParams struct {
	Iterations int `mapstructure:"iterations" json:"iterations"`
}

type MonteCarloResult struct {
	TotalIterations     int     `json:"total_iterations"`
	SampledIterations   int     `json:"sampled_iterations"`
	PiEstimate          float64 `json:"pi_estimate"`
	PiError             float64 `json:"pi_error"`
	IterationsPerSecond float64 `json:"iterations_per_second"`
}

type monteCarlo struct {
	params MonteCarloParams
}

func newMonteCarlo(p MonteCarloParams) (Workload, error) {
	if p.Iterations < 1 {
		return nil, invalidParams("iterations must be at least 1")
	}
	return &monteCarlo{params: p}, nil
}

func (*monteCarlo) Kind() Kind    { return KindMonteCarlo }
func (w *monteCarlo) Params() any { return w.params }

type share struct {
	index int
	n     int
}

func (w *monteCarlo) Run(ctx context.Context, pool *executor.Pool) (*Result, error) {
	// Remainder iterations are dropped on purpose; see partition.Shares.
	counts, err := partition.Shares(w.params.Iterations, pool.Size())
	if err != nil {
		return nil, err
	}
	if counts[0] == 0 {
		return nil, invalidParams("iterations must be at least the worker count")
	}

	shares := make([]share, len(counts))
	for i, n := range counts {
		shares[i] = share{index: i, n: n}
	}

	seed := time.Now().UnixNano()
	elapsed := stopwatch()
	inside, err := executor.Run(ctx, pool, shares, func(_ context.Context, s share) (int, error) {
		return CountInside(s.n, rand.New(rand.NewSource(seed+int64(s.index)))), nil
	})
	if err != nil {
		return nil, err
	}

	total := 0
	for _, c := range inside {
		total += c
	}
	sampled := counts[0] * len(counts)
	estimate := 4 * float64(total) / float64(sampled)

	res := newResult("Monte Carlo π Calculation", "iterations/s", pool.Size(), elapsed(), float64(w.params.Iterations))
	res.MonteCarlo = &MonteCarloResult{
		TotalIterations:     w.params.Iterations,
		SampledIterations:   sampled,
		PiEstimate:          estimate,
		PiError:             math.Abs(estimate - math.Pi),
		IterationsPerSecond: res.Throughput,
	}
	return res, nil
}

// CountInside samples n uniform points in [-1,1]² and counts those with x²+y² <= 1.
func CountInside(n int, rng *rand.Rand) int {
	count := 0
	for i := 0; i < n; i++ {
		x := rng.Float64()*2 - 1
		y := rng.Float64()*2 - 1
		if x*x+y*y <= 1 {
			count++
		}
	}
	return count
}
