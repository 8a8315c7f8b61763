package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/cpubench/internal/errors"
	"codeberg.org/mutker/cpubench/internal/logger"
	"codeberg.org/mutker/cpubench/internal/sensor"
)

// SamplerOption customises a Sampler.
type SamplerOption func(*Sampler)

// WithRecorder forwards every appended sample to r.
func WithRecorder(r Recorder) SamplerOption {
	return func(s *Sampler) {
		s.recorder = r
	}
}

// WithLogger sets the sampler's logger.
func WithLogger(log logger.Logger) SamplerOption {
	return func(s *Sampler) {
		s.logger = log
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SamplerOption {
	return func(s *Sampler) {
		s.now = now
	}
}

// Sampler polls a sensor.Provider on a fixed interval into a History.
// The loop is the only writer of the history while it runs; Stop joins the
// loop before returning, so no append happens after Stop.
type Sampler struct {
	provider sensor.Provider
	history  *History
	recorder Recorder
	logger   logger.Logger
	now      func() time.Time

	interval atomic.Int64
	misses   atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSampler(provider sensor.Provider, cfg Config, opts ...SamplerOption) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Sampler{
		provider: provider,
		history:  NewHistory(cfg.HistorySize),
		logger:   logger.Nop(),
		now:      time.Now,
	}
	s.interval.Store(int64(cfg.Interval))
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the sampling loop. It is a no-op while already running.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.logger.Debug().Dur("interval", s.Interval()).Msg("Sampler started")
}

// Stop ends the sampling loop and waits for it to exit.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Debug().Int("samples", s.history.Len()).Msg("Sampler stopped")
}

func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Sampler) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.Interval())
		}
	}
}

func (s *Sampler) tick(ctx context.Context) {
	r, err := s.provider.Sample(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.misses.Add(1)
		s.logger.ErrorWithCode(errors.New().Wrap(ErrSamplingMiss, err)).Msg("Skipping telemetry tick")
		return
	}

	sample := newSample(s.now(), r)
	s.history.Append(sample)

	if s.recorder != nil {
		if err := s.recorder.RecordSample(ctx, sample); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to record sample")
		}
	}
}

// SetInterval changes the sampling cadence; a running loop picks it up
// after its next tick.
func (s *Sampler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return errors.New().WithData(ErrInvalidInterval, d.String())
	}
	s.interval.Store(int64(d))
	return nil
}

func (s *Sampler) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// Misses counts ticks that failed to acquire a sample.
func (s *Sampler) Misses() uint64 {
	return s.misses.Load()
}

// Current reads the provider directly without touching the history.
func (s *Sampler) Current(ctx context.Context) (Sample, error) {
	r, err := s.provider.Sample(ctx)
	if err != nil {
		return Sample{}, errors.New().Wrap(ErrSamplingMiss, err)
	}
	return newSample(s.now(), r), nil
}

func (s *Sampler) History() *History {
	return s.history
}

func (s *Sampler) Snapshot() []Sample {
	return s.history.Snapshot()
}

func (s *Sampler) Latest(n int) []Sample {
	return s.history.Latest(n)
}

func (s *Sampler) Clear() {
	s.history.Clear()
}

// Average aggregates the samples of the trailing window. It returns nil
// when the window holds no sample.
func (s *Sampler) Average(window time.Duration) *AggregateWindow {
	now := s.now()
	return Aggregate(s.history.Since(now.Add(-window)), window, now)
}

// Peaks returns the maxima over the whole history.
func (s *Sampler) Peaks() Peaks {
	return PeaksOf(s.history.Snapshot())
}

// SystemInfo passes through to the provider.
func (s *Sampler) SystemInfo(ctx context.Context) (sensor.SystemInfo, error) {
	return s.provider.SystemInfo(ctx)
}
