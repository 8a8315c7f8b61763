package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/cpubench/internal/errors"
	"codeberg.org/mutker/cpubench/internal/executor"
	"codeberg.org/mutker/cpubench/internal/logger"
	"codeberg.org/mutker/cpubench/internal/metrics"
	"codeberg.org/mutker/cpubench/internal/sensor"
	"codeberg.org/mutker/cpubench/internal/telemetry"
	"codeberg.org/mutker/cpubench/internal/workload"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru"
)

const (
	idle int32 = iota
	running

	testIDLayout        = "20060102_150405"
	DefaultResultsLimit = 50
)

// Factory builds a workload from a kind and request parameters.
type Factory func(kind workload.Kind, params map[string]any, defaults workload.Defaults) (workload.Workload, error)

type Config struct {
	Workers      int
	TestInterval time.Duration
	IdleInterval time.Duration
	ResultsLimit int
	Defaults     workload.Defaults
}

func DefaultConfig() Config {
	return Config{
		TestInterval: telemetry.DefaultTestInterval,
		IdleInterval: telemetry.DefaultInterval,
		ResultsLimit: DefaultResultsLimit,
		Defaults:     workload.DefaultParams(),
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.TestInterval <= 0 || c.IdleInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "sampling intervals must be positive")
	}
	if c.ResultsLimit <= 0 {
		return errFactory.WithData(ErrInvalidConfig, "results limit must be positive")
	}
	return nil
}

type Option func(*Coordinator)

func WithLogger(log logger.Logger) Option {
	return func(c *Coordinator) {
		c.logger = log
	}
}

// WithCollector stores every finished session through m.
func WithCollector(m metrics.Collector) Option {
	return func(c *Coordinator) {
		c.collector = m
	}
}

// WithFactory replaces workload.New.
func WithFactory(f Factory) Option {
	return func(c *Coordinator) {
		c.factory = f
	}
}

// WithCloser registers a resource released by Close.
func WithCloser(cl io.Closer) Option {
	return func(c *Coordinator) {
		c.closers = append(c.closers, cl)
	}
}

// Coordinator serialises benchmark sessions. A compare-and-swap on state
// admits at most one running test; the test's own goroutine is the only
// path back to idle.
type Coordinator struct {
	cfg       Config
	sampler   *telemetry.Sampler
	pool      *executor.Pool
	factory   Factory
	collector metrics.Collector
	logger    logger.Logger
	closers   []io.Closer
	now       func() time.Time

	state atomic.Int32

	mu      sync.RWMutex
	active  *Session
	last    *Session
	done    chan struct{}
	archive *lru.Cache

	wg sync.WaitGroup
}

func New(sampler *telemetry.Sampler, cfg Config, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	archive, err := lru.New(cfg.ResultsLimit)
	if err != nil {
		return nil, errors.New().Wrap(ErrInvalidConfig, err)
	}

	c := &Coordinator{
		cfg:       cfg,
		sampler:   sampler,
		factory:   workload.New,
		collector: nil,
		logger:    logger.Nop(),
		now:       time.Now,
		archive:   archive,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pool = executor.New(cfg.Workers, c.logger)

	closed := make(chan struct{})
	close(closed)
	c.done = closed

	return c, nil
}

// Workers returns the size of the worker pool shared by every test.
func (c *Coordinator) Workers() int {
	return c.pool.Size()
}

// StartTest validates the request, claims the coordinator and runs the
// workload in the background. It returns the new test ID, or
// ErrAlreadyRunning while another test is active.
func (c *Coordinator) StartTest(kind string, params map[string]any) (string, error) {
	errFactory := errors.New()

	k, err := workload.ParseKind(kind)
	if err != nil {
		return "", err
	}
	w, err := c.factory(k, params, c.cfg.Defaults)
	if err != nil {
		return "", err
	}

	started := c.now()
	sess := &Session{
		TestID:    newTestID(k, started),
		Kind:      k,
		Params:    w.Params(),
		Status:    StateRunning,
		StartedAt: started,
	}

	// The state flip and the active session publish together under mu, so a
	// rejected caller always sees the session that won.
	c.mu.Lock()
	if !c.state.CompareAndSwap(idle, running) {
		activeID := ""
		if c.active != nil {
			activeID = c.active.TestID
		}
		c.mu.Unlock()
		return "", errFactory.WithData(ErrAlreadyRunning, activeID)
	}
	c.active = sess
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.sampler.Stop()
	c.sampler.Clear()
	if err := c.sampler.SetInterval(c.cfg.TestInterval); err != nil {
		c.logger.Warn().Err(err).Msg("Keeping previous sampling interval")
	}
	c.sampler.Start()

	c.logger.Info().
		Str("test_id", sess.TestID).
		Str("kind", string(k)).
		Int("workers", c.pool.Size()).
		Msg("Test started")

	c.wg.Add(1)
	go c.run(sess, w, done)

	return sess.TestID, nil
}

func (c *Coordinator) run(sess *Session, w workload.Workload, done chan struct{}) {
	defer c.wg.Done()

	res, runErr := c.execute(w)

	c.sampler.Stop()
	if err := c.sampler.SetInterval(c.cfg.IdleInterval); err != nil {
		c.logger.Warn().Err(err).Msg("Keeping test sampling interval")
	}

	finished := c.now()
	samples := c.sampler.Snapshot()
	duration := finished.Sub(sess.StartedAt)

	out := *sess
	out.FinishedAt = finished
	out.Monitoring = &Monitoring{
		AggregateWindow:     telemetry.Aggregate(samples, duration, finished),
		Peaks:               telemetry.PeaksOf(samples),
		TestDurationSeconds: duration.Seconds(),
		TestStartTime:       sess.StartedAt,
		TestEndTime:         finished,
	}
	if runErr != nil {
		out.Status = StateFailed
		out.Error = runErr.Error()
		c.logger.Error().Err(runErr).Str("test_id", out.TestID).Msg("Test failed")
	} else {
		out.Status = StateCompleted
		out.Result = res
		c.logger.Info().
			Str("test_id", out.TestID).
			Float64("execution_time_seconds", res.ExecutionTimeSeconds).
			Int("samples", len(samples)).
			Msg("Test completed")
	}

	c.archive.Add(out.TestID, &out)
	c.record(&out)

	c.mu.Lock()
	c.active = nil
	c.last = &out
	c.state.Store(idle)
	c.mu.Unlock()

	close(done)
}

// execute runs w, turning a panic into ErrWorkerFailure so the caller's
// cleanup always happens.
func (c *Coordinator) execute(w workload.Workload) (res *workload.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = errors.New().WithData(ErrWorkerFailure, fmt.Sprint(r))
		}
	}()

	res, err = w.Run(context.Background(), c.pool)
	if err == nil && res == nil {
		err = errors.New().WithMessage(ErrWorkerFailure, "workload returned no result")
	}
	return res, err
}

func (c *Coordinator) record(s *Session) {
	if c.collector == nil {
		return
	}

	rec := &metrics.SessionRecord{
		TestID:     s.TestID,
		Kind:       string(s.Kind),
		Status:     string(s.Status),
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Error:      s.Error,
	}
	if s.Result != nil {
		rec.ExecutionTimeSeconds = s.Result.ExecutionTimeSeconds
		rec.Throughput = s.Result.Throughput
		rec.ThroughputUnit = s.Result.ThroughputUnit
		rec.CPUCoresUsed = s.Result.CPUCoresUsed
	}
	if m := s.Monitoring; m != nil {
		rec.PeakCPUPercent = m.Peaks.CPUPercent
		rec.PeakMemPercent = m.Peaks.MemPercent
		rec.PeakTemperature = m.Peaks.TemperatureC
		if m.AggregateWindow != nil {
			rec.SampleCount = m.SampleCount
			rec.AvgCPUPercent = m.AvgCPUPercent
		}
	}

	if err := c.collector.RecordSession(context.Background(), rec); err != nil {
		c.logger.Warn().Err(err).Str("test_id", s.TestID).Msg("Failed to record session")
	}
}

// Status reports the current state. While running it carries the elapsed
// time and the freshest sample; when idle it carries the last finished session.
func (c *Coordinator) Status(ctx context.Context) Status {
	c.mu.RLock()
	active, last := c.active, c.last
	c.mu.RUnlock()

	if active == nil {
		st := Status{State: StateIdle}
		if last != nil {
			cp := *last
			st.Last = &cp
		}
		return st
	}

	st := Status{
		State:          StateRunning,
		TestID:         active.TestID,
		Kind:           active.Kind,
		ElapsedSeconds: c.now().Sub(active.StartedAt).Seconds(),
	}
	if latest := c.sampler.Latest(1); len(latest) == 1 {
		st.Realtime = &latest[0]
	} else if cur, err := c.sampler.Current(ctx); err == nil {
		st.Realtime = &cur
	}
	return st
}

// Running reports whether a test is active.
func (c *Coordinator) Running() bool {
	return c.state.Load() == running
}

// Result returns the archived session for testID.
func (c *Coordinator) Result(testID string) (*Session, error) {
	v, ok := c.archive.Peek(testID)
	if !ok {
		return nil, errors.New().WithData(ErrNotFound, testID)
	}
	cp := *v.(*Session)
	return &cp, nil
}

// Results lists archived sessions, oldest first.
func (c *Coordinator) Results() []*Session {
	keys := c.archive.Keys()
	out := make([]*Session, 0, len(keys))
	for _, k := range keys {
		if v, ok := c.archive.Peek(k); ok {
			cp := *v.(*Session)
			out = append(out, &cp)
		}
	}
	return out
}

func (c *Coordinator) ClearResults() {
	c.archive.Purge()
	c.mu.Lock()
	c.last = nil
	c.mu.Unlock()
}

// Done returns a channel closed when the current test finishes. It is
// already closed when no test is running.
func (c *Coordinator) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

// Wait blocks until the running test, if any, finishes or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	select {
	case <-c.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentMetrics is a point read of the sensors; it does not touch the history.
func (c *Coordinator) CurrentMetrics(ctx context.Context) (telemetry.Sample, error) {
	return c.sampler.Current(ctx)
}

func (c *Coordinator) ExportHistory(w io.Writer) error {
	return c.sampler.Export(w)
}

func (c *Coordinator) ExportHistoryFile(dir string) (string, error) {
	return c.sampler.ExportFile(dir)
}

func (c *Coordinator) SystemInfo(ctx context.Context) (sensor.SystemInfo, error) {
	return c.sampler.SystemInfo(ctx)
}

// Close waits for a running test, stops sampling and releases the
// collector and registered closers.
func (c *Coordinator) Close() error {
	c.wg.Wait()
	c.sampler.Stop()

	var result *multierror.Error
	if c.collector != nil {
		if err := c.collector.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func newTestID(kind workload.Kind, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s", kind, at.Format(testIDLayout), uuid.NewString()[:8])
}
