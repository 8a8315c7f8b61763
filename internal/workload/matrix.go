package workload

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"codeberg.org/mutker/cpubench/internal/executor"
	"codeberg.org/mutker/cpubench/internal/partition"
)

type MatrixParams struct {
	Size int `mapstructure:"size" json:"size"`
}

type MatrixResult struct {
	MatrixSize          string  `json:"matrix_size"`
	Operations          int64   `json:"operations"`
	OperationsPerSecond float64 `json:"operations_per_second"`
}

// Matrix is a dense square matrix stored row-major.
type Matrix struct {
	N    int
	Data []float64
}

// NewRandomMatrix fills an n×n matrix with independent values in [0,1).
func NewRandomMatrix(n int, rng *rand.Rand) *Matrix {
	m := &Matrix{N: n, Data: make([]float64, n*n)}
	for i := range m.Data {
		m.Data[i] = rng.Float64()
	}
	return m
}

// At returns the element at row i, column j.
func (m *Matrix) At(i, j int) float64 {
	return m.Data[i*m.N+j]
}

type rowBlock struct {
	index int
	rows  []float64
}

type matrix struct {
	params MatrixParams
}

func newMatrix(p MatrixParams) (Workload, error) {
	if p.Size < 0 {
		return nil, invalidParams("size must not be negative")
	}
	return &matrix{params: p}, nil
}

func (*matrix) Kind() Kind    { return KindMatrix }
func (w *matrix) Params() any { return w.params }

func (w *matrix) Run(ctx context.Context, pool *executor.Pool) (*Result, error) {
	n := w.params.Size
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	a := NewRandomMatrix(n, rng)
	b := NewRandomMatrix(n, rng)

	elapsed := stopwatch()
	if _, err := Multiply(ctx, pool, a, b); err != nil {
		return nil, err
	}

	ops := int64(n) * int64(n) * int64(n)
	res := newResult("Matrix Multiplication", "ops/s", pool.Size(), elapsed(), float64(ops))
	res.Matrix = &MatrixResult{
		MatrixSize:          fmt.Sprintf("%dx%d", n, n),
		Operations:          ops,
		OperationsPerSecond: res.Throughput,
	}
	return res, nil
}

// Multiply computes a·b, one row block per worker. Blocks complete in any
// order and are restacked by their range index.
func Multiply(ctx context.Context, pool *executor.Pool, a, b *Matrix) (*Matrix, error) {
	if a.N != b.N {
		return nil, invalidParams(fmt.Sprintf("dimension mismatch: %d vs %d", a.N, b.N))
	}
	n := a.N

	ranges, err := partition.Split(n, pool.Size())
	if err != nil {
		return nil, err
	}

	blocks, err := executor.Run(ctx, pool, ranges, func(_ context.Context, r partition.Range) (rowBlock, error) {
		return rowBlock{index: r.Index, rows: multiplyRows(a, b, r.Start, r.End)}, nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].index < blocks[j].index })

	out := &Matrix{N: n, Data: make([]float64, 0, n*n)}
	for _, blk := range blocks {
		out.Data = append(out.Data, blk.rows...)
	}
	return out, nil
}

// multiplyRows computes rows [from, to) of a·b in i-k-j order.
func multiplyRows(a, b *Matrix, from, to int) []float64 {
	n := a.N
	out := make([]float64, (to-from)*n)
	for i := from; i < to; i++ {
		row := out[(i-from)*n : (i-from+1)*n]
		for k := 0; k < n; k++ {
			aik := a.Data[i*n+k]
			bk := b.Data[k*n : (k+1)*n]
			for j, v := range bk {
				row[j] += aik * v
			}
		}
	}
	return out
}
