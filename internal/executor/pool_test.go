package executor_test

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/cpubench/internal/errors"
	"codeberg.org/mutker/cpubench/internal/executor"
	"codeberg.org/mutker/cpubench/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCollectsAllResults(t *testing.T) {
	pool := executor.New(4, logger.Nop())
	inputs := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	out, err := executor.Run(context.Background(), pool, inputs, func(_ context.Context, n int) (int, error) {
		return n * n, nil
	})
	require.NoError(t, err)

	sort.Ints(out)
	assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49, 64, 81, 100}, out)
}

func TestRunEmpty(t *testing.T) {
	pool := executor.New(2, nil)
	out, err := executor.Run(context.Background(), pool, []int{}, func(_ context.Context, n int) (int, error) {
		return n, nil
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRunBoundsConcurrency(t *testing.T) {
	pool := executor.New(3, logger.Nop())
	var active, peak atomic.Int32

	inputs := make([]int, 12)
	_, err := executor.Run(context.Background(), pool, inputs, func(_ context.Context, _ int) (struct{}, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRunCompletionOrder(t *testing.T) {
	pool := executor.New(2, logger.Nop())
	delays := []time.Duration{40 * time.Millisecond, 0}

	out, err := executor.Run(context.Background(), pool, []int{0, 1}, func(_ context.Context, i int) (int, error) {
		time.Sleep(delays[i])
		return i, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, out, "results are collected as they complete")
}

func TestRunPropagatesFirstFailure(t *testing.T) {
	pool := executor.New(4, logger.Nop())
	boom := fmt.Errorf("chunk 3 exploded")

	start := time.Now()
	_, err := executor.Run(context.Background(), pool, []int{0, 1, 2, 3}, func(_ context.Context, i int) (int, error) {
		if i == 3 {
			return 0, boom
		}
		time.Sleep(300 * time.Millisecond)
		return i, nil
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrWorkerFailure))
	assert.ErrorIs(t, err, boom)
	assert.Less(t, time.Since(start), 250*time.Millisecond, "executor must not wait for the remaining workers")
}

func TestRunRecoversPanics(t *testing.T) {
	pool := executor.New(2, logger.Nop())

	_, err := executor.Run(context.Background(), pool, []int{0, 1}, func(_ context.Context, i int) (int, error) {
		if i == 1 {
			panic("index out of range")
		}
		return i, nil
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrWorkerFailure))
	assert.True(t, errors.HasCode(err, executor.ErrWorkerPanic))
	assert.Contains(t, err.Error(), "index out of range")
}

func TestForkRunsBothHalves(t *testing.T) {
	pool := executor.New(2, logger.Nop())
	var left, right atomic.Bool

	err := pool.Fork(context.Background(),
		func(context.Context) error { left.Store(true); return nil },
		func(context.Context) error { right.Store(true); return nil },
	)
	require.NoError(t, err)
	assert.True(t, left.Load())
	assert.True(t, right.Load())
}

func TestForkFallsBackInlineWhenSaturated(t *testing.T) {
	pool := executor.New(1, logger.Nop())

	var depth func(ctx context.Context, d int) error
	var calls atomic.Int32
	depth = func(ctx context.Context, d int) error {
		calls.Add(1)
		if d == 0 {
			return nil
		}
		return pool.Fork(ctx,
			func(ctx context.Context) error { return depth(ctx, d-1) },
			func(ctx context.Context) error { return depth(ctx, d-1) },
		)
	}

	require.NoError(t, depth(context.Background(), 4))
	assert.Equal(t, int32(31), calls.Load())
}

func TestForkReturnsError(t *testing.T) {
	pool := executor.New(2, logger.Nop())
	boom := fmt.Errorf("right failed")

	err := pool.Fork(context.Background(),
		func(context.Context) error { return nil },
		func(context.Context) error { return boom },
	)
	assert.ErrorIs(t, err, boom)
}
