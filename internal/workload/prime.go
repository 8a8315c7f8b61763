package workload

import (
	"context"
	"math"

	"codeberg.org/mutker/cpubench/internal/executor"
	"codeberg.org/mutker/cpubench/internal/partition"
)

const firstPrime = 2

type PrimeParams struct {
	MaxNumber int `mapstructure:"max_number" json:"max_number"`
}

type PrimeResult struct {
	MaxNumber       int     `json:"max_number"`
	PrimesFound     int     `json:"primes_found"`
	PrimesPerSecond float64 `json:"primes_per_second"`
}

type prime struct {
	params PrimeParams
}

func newPrime(p PrimeParams) (Workload, error) {
	if p.MaxNumber < 0 {
		return nil, invalidParams("max_number must not be negative")
	}
	return &prime{params: p}, nil
}

func (*prime) Kind() Kind    { return KindPrime }
func (w *prime) Params() any { return w.params }

func (w *prime) Run(ctx context.Context, pool *executor.Pool) (*Result, error) {
	ranges, err := partition.Inclusive(firstPrime, w.params.MaxNumber, pool.Size())
	if err != nil {
		return nil, err
	}

	elapsed := stopwatch()
	base := basePrimes(isqrt(w.params.MaxNumber))

	chunks, err := executor.Run(ctx, pool, ranges, func(_ context.Context, r partition.Range) ([]int, error) {
		return sieveSegment(r.Start, r.Last(), base), nil
	})
	if err != nil {
		return nil, err
	}

	found := 0
	for _, c := range chunks {
		found += len(c)
	}

	res := newResult("Prime Generation", "primes/s", pool.Size(), elapsed(), float64(found))
	res.Prime = &PrimeResult{
		MaxNumber:       w.params.MaxNumber,
		PrimesFound:     found,
		PrimesPerSecond: res.Throughput,
	}
	return res, nil
}

// SieveSegment returns the primes in the closed interval [start, end]
// using a segmented Sieve of Eratosthenes.
func SieveSegment(start, end int) []int {
	return sieveSegment(start, end, basePrimes(isqrt(end)))
}

// sieveSegment clears multiples of every base prime p <= sqrt(end),
// starting at max(p*p, ceil(start/p)*p).
func sieveSegment(start, end int, base []int) []int {
	if start < firstPrime {
		start = firstPrime
	}
	if end < start {
		return nil
	}

	composite := make([]bool, end-start+1)
	for _, p := range base {
		if p*p > end {
			break
		}
		first := max(p*p, (start+p-1)/p*p)
		for i := first; i <= end; i += p {
			composite[i-start] = true
		}
	}

	primes := make([]int, 0, len(composite)/8+1)
	for i, c := range composite {
		if !c {
			primes = append(primes, start+i)
		}
	}
	return primes
}

// basePrimes returns every prime <= limit.
func basePrimes(limit int) []int {
	if limit < firstPrime {
		return nil
	}
	composite := make([]bool, limit+1)
	var primes []int
	for p := firstPrime; p <= limit; p++ {
		if composite[p] {
			continue
		}
		primes = append(primes, p)
		for m := p * p; m <= limit; m += p {
			composite[m] = true
		}
	}
	return primes
}

func isqrt(n int) int {
	if n < 0 {
		return 0
	}
	r := int(math.Sqrt(float64(n)))
	for r*r > n {
		r--
	}
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}
