// Package executor runs chunked work on a fixed-size worker pool.
package executor

import (
	"context"
	"fmt"
	"runtime"

	"codeberg.org/mutker/cpubench/internal/errors"
	"codeberg.org/mutker/cpubench/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Pool is a bounded set of workers reused across benchmark runs. Run fans
// chunks out to at most Size goroutines; Fork offloads one half of a
// fork-join split only while a pool slot is free.
type Pool struct {
	size   int
	slots  chan struct{}
	logger logger.Logger
}

// New creates a pool of the given size; size <= 0 means one worker per logical core.
func New(size int, log logger.Logger) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pool{
		size:   size,
		slots:  make(chan struct{}, size),
		logger: log,
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

type outcome[Out any] struct {
	index int
	value Out
	err   error
}

// Run applies fn to every input on min(Size, len(inputs)) workers and
// returns the outputs in completion order. The first failure is returned
// immediately wrapped as ErrWorkerFailure; remaining workers stop picking
// up new inputs but are not waited for.
func Run[In, Out any](ctx context.Context, p *Pool, inputs []In, fn func(context.Context, In) (Out, error)) ([]Out, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)

	queue := make(chan int, len(inputs))
	for i := range inputs {
		queue <- i
	}
	close(queue)

	// Buffered to len(inputs) so abandoned workers never block on send.
	results := make(chan outcome[Out], len(inputs))

	workers := min(p.size, len(inputs))
	p.logger.Debug().
		Int("workers", workers).
		Int("chunks", len(inputs)).
		Msg("Dispatching chunks")

	for w := 0; w < workers; w++ {
		go func() {
			for i := range queue {
				if ctx.Err() != nil {
					return
				}
				value, err := call(ctx, fn, inputs[i])
				results <- outcome[Out]{index: i, value: value, err: err}
			}
		}()
	}

	errFactory := errors.New()
	outputs := make([]Out, 0, len(inputs))
	for range inputs {
		select {
		case <-ctx.Done():
			cancel()
			return nil, errFactory.Wrap(ErrWorkerFailure, ctx.Err())
		case res := <-results:
			if res.err != nil {
				cancel()
				p.logger.Debug().Err(res.err).Int("chunk", res.index).Msg("Chunk failed")
				return nil, errFactory.Wrap(ErrWorkerFailure, res.err)
			}
			outputs = append(outputs, res.value)
		}
	}
	cancel()

	return outputs, nil
}

func call[In, Out any](ctx context.Context, fn func(context.Context, In) (Out, error), in In) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New().WithData(ErrWorkerPanic, fmt.Sprint(r))
		}
	}()
	return fn(ctx, in)
}

// Fork runs left and right and waits for both. right is handed to a
// separate goroutine when a pool slot is free, otherwise both run inline,
// so nested forks never exceed the pool size.
func (p *Pool) Fork(ctx context.Context, left, right func(context.Context) error) error {
	select {
	case p.slots <- struct{}{}:
	default:
		if err := left(ctx); err != nil {
			return err
		}
		return right(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer func() { <-p.slots }()
		return guard(gctx, right)
	})
	g.Go(func() error {
		return guard(gctx, left)
	})

	return g.Wait()
}

func guard(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New().WithData(ErrWorkerPanic, fmt.Sprint(r))
		}
	}()
	return fn(ctx)
}
