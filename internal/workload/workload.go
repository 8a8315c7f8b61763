// Package workload defines the CPU-bound benchmark kernels. Each kernel
// splits its problem into chunks, runs them on an executor.Pool and merges
// the partial outputs into a Result.
package workload

import (
	"context"
	"strings"
	"time"

	"codeberg.org/mutker/cpubench/internal/errors"
	"codeberg.org/mutker/cpubench/internal/executor"
	"github.com/mitchellh/mapstructure"
)

// Kind identifies a workload.
type Kind string

const (
	KindPrime      Kind = "prime"
	KindMatrix     Kind = "matrix"
	KindFibonacci  Kind = "fibonacci"
	KindSorting    Kind = "sorting"
	KindMonteCarlo Kind = "monte_carlo"
)

// Kinds lists every supported workload in presentation order.
var Kinds = []Kind{KindPrime, KindMatrix, KindFibonacci, KindSorting, KindMonteCarlo}

// ParseKind accepts a kind name, tolerating dashes for underscores.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", errors.New().WithData(ErrInvalidKind, s)
}

// Workload is one runnable benchmark with resolved parameters.
type Workload interface {
	Kind() Kind
	Params() any
	Run(ctx context.Context, pool *executor.Pool) (*Result, error)
}

// Result carries the common measurements plus exactly one kind-specific block.
type Result struct {
	TestType             string  `json:"test_type"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
	CPUCoresUsed         int     `json:"cpu_cores_used"`
	Throughput           float64 `json:"throughput"`
	ThroughputUnit       string  `json:"throughput_unit"`

	Prime      *PrimeResult      `json:"prime,omitempty"`
	Matrix     *MatrixResult     `json:"matrix,omitempty"`
	Fibonacci  *FibonacciResult  `json:"fibonacci,omitempty"`
	Sorting    *SortingResult    `json:"sorting,omitempty"`
	MonteCarlo *MonteCarloResult `json:"monte_carlo,omitempty"`
}

func newResult(testType, unit string, workers int, elapsed time.Duration, count float64) *Result {
	seconds := elapsed.Seconds()
	return &Result{
		TestType:             testType,
		ExecutionTimeSeconds: seconds,
		CPUCoresUsed:         workers,
		Throughput:           rate(count, seconds),
		ThroughputUnit:       unit,
	}
}

func rate(count, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return count / seconds
}

// Defaults holds the parameters used when a request leaves them out.
type Defaults struct {
	Prime      PrimeParams
	Matrix     MatrixParams
	Fibonacci  FibonacciParams
	Sorting    SortingParams
	MonteCarlo MonteCarloParams
}

// DefaultParams mirrors the built-in configuration defaults.
func DefaultParams() Defaults {
	return Defaults{
		Prime:      PrimeParams{MaxNumber: 1000000},
		Matrix:     MatrixParams{Size: 1000},
		Fibonacci:  FibonacciParams{MaxN: 50000},
		Sorting:    SortingParams{ArraySize: 100000, ParallelDepth: 3, ParallelThreshold: 1000},
		MonteCarlo: MonteCarloParams{Iterations: 10000000},
	}
}

// New resolves params on top of defaults and builds the workload for kind.
func New(kind Kind, params map[string]any, defaults Defaults) (Workload, error) {
	switch kind {
	case KindPrime:
		p := defaults.Prime
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return newPrime(p)
	case KindMatrix:
		p := defaults.Matrix
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return newMatrix(p)
	case KindFibonacci:
		p := defaults.Fibonacci
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return newFibonacci(p)
	case KindSorting:
		p := defaults.Sorting
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return newSorting(p)
	case KindMonteCarlo:
		p := defaults.MonteCarlo
		if v, ok := params["total_iterations"]; ok {
			params = withKey(params, "iterations", v, "total_iterations")
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return newMonteCarlo(p)
	default:
		return nil, errors.New().WithData(ErrInvalidKind, string(kind))
	}
}

func decode(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return errors.New().Wrap(errors.ErrInternal, err)
	}
	if err := dec.Decode(params); err != nil {
		return errors.New().Wrap(ErrInvalidParams, err)
	}
	return nil
}

func withKey(params map[string]any, key string, value any, drop string) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if k != drop {
			out[k] = v
		}
	}
	out[key] = value
	return out
}

func invalidParams(msg string) error {
	return errors.New().WithData(ErrInvalidParams, msg)
}

func stopwatch() func() time.Duration {
	start := time.Now()
	return func() time.Duration { return time.Since(start) }
}
