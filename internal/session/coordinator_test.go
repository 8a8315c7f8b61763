package session_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/cpubench/internal/errors"
	"codeberg.org/mutker/cpubench/internal/executor"
	"codeberg.org/mutker/cpubench/internal/metrics"
	"codeberg.org/mutker/cpubench/internal/sensor"
	"codeberg.org/mutker/cpubench/internal/session"
	"codeberg.org/mutker/cpubench/internal/telemetry"
	"codeberg.org/mutker/cpubench/internal/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct{}

func (fakeProvider) Sample(context.Context) (sensor.Reading, error) {
	t := 60.0
	return sensor.Reading{CPUPercent: 80, CPUFreqMHz: 3000, MemPercent: 25, MemUsedGB: 4, MemTotalGB: 16, TemperatureC: &t}, nil
}

func (fakeProvider) SystemInfo(context.Context) (sensor.SystemInfo, error) {
	return sensor.SystemInfo{CPU: sensor.CPUInfo{LogicalCores: 8, PhysicalCores: 4}}, nil
}

// gatedWorkload blocks until release is closed, then succeeds or fails.
type gatedWorkload struct {
	release chan struct{}
	err     error
	panics  bool
}

func (*gatedWorkload) Kind() workload.Kind { return workload.KindPrime }
func (*gatedWorkload) Params() any         { return map[string]int{"max_number": 10} }

func (w *gatedWorkload) Run(_ context.Context, pool *executor.Pool) (*workload.Result, error) {
	<-w.release
	if w.panics {
		panic("boom")
	}
	if w.err != nil {
		return nil, w.err
	}
	return &workload.Result{TestType: "Prime Generation", CPUCoresUsed: pool.Size(), ExecutionTimeSeconds: 0.01}, nil
}

type recordingCollector struct {
	mu       sync.Mutex
	sessions []*metrics.SessionRecord
	closed   bool
}

func (*recordingCollector) RecordSample(context.Context, telemetry.Sample) error { return nil }

func (r *recordingCollector) RecordSession(_ context.Context, rec *metrics.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, rec)
	return nil
}

func (r *recordingCollector) Close() error {
	r.closed = true
	return nil
}

func (*recordingCollector) Enabled() bool { return true }

type fixture struct {
	coord   *session.Coordinator
	sampler *telemetry.Sampler
}

func newFixture(t *testing.T, opts ...session.Option) fixture {
	t.Helper()
	sampler, err := telemetry.NewSampler(fakeProvider{}, telemetry.Config{Interval: time.Second, HistorySize: 100})
	require.NoError(t, err)

	cfg := session.DefaultConfig()
	cfg.Workers = 2
	cfg.TestInterval = 2 * time.Millisecond
	cfg.ResultsLimit = 3

	coord, err := session.New(sampler, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = coord.Close() })
	return fixture{coord: coord, sampler: sampler}
}

func gated(w *gatedWorkload) session.Option {
	return session.WithFactory(func(workload.Kind, map[string]any, workload.Defaults) (workload.Workload, error) {
		return w, nil
	})
}

func wait(t *testing.T, c *session.Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func TestStartTestCompletes(t *testing.T) {
	w := &gatedWorkload{release: make(chan struct{})}
	f := newFixture(t, gated(w))

	id, err := f.coord.StartTest("prime", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "prime_"))
	assert.Len(t, id, len("prime_20060102_150405_")+8)

	require.Eventually(t, func() bool { return f.sampler.History().Len() >= 2 }, time.Second, time.Millisecond)
	st := f.coord.Status(context.Background())
	assert.Equal(t, session.StateRunning, st.State)
	assert.Equal(t, id, st.TestID)
	require.NotNil(t, st.Realtime)
	assert.InDelta(t, 80.0, st.Realtime.CPUPercent, 1e-9)

	close(w.release)
	wait(t, f.coord)

	assert.False(t, f.coord.Running())
	assert.False(t, f.sampler.Running())
	assert.Equal(t, time.Second, f.sampler.Interval())

	res, err := f.coord.Result(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateCompleted, res.Status)
	require.NotNil(t, res.Result)
	assert.Equal(t, 2, res.Result.CPUCoresUsed)
	require.NotNil(t, res.Monitoring)
	require.NotNil(t, res.Monitoring.AggregateWindow)
	assert.GreaterOrEqual(t, res.Monitoring.SampleCount, 2)
	assert.InDelta(t, 80.0, res.Monitoring.AvgCPUPercent, 1e-9)
	assert.InDelta(t, 80.0, res.Monitoring.Peaks.CPUPercent, 1e-9)
	require.NotNil(t, res.Monitoring.Peaks.TemperatureC)
	assert.InDelta(t, 60.0, *res.Monitoring.Peaks.TemperatureC, 1e-9)
	assert.False(t, res.Monitoring.TestEndTime.Before(res.Monitoring.TestStartTime))

	st = f.coord.Status(context.Background())
	assert.Equal(t, session.StateIdle, st.State)
	require.NotNil(t, st.Last)
	assert.Equal(t, id, st.Last.TestID)
}

func TestStartTestWhileRunning(t *testing.T) {
	w := &gatedWorkload{release: make(chan struct{})}
	f := newFixture(t, gated(w))

	id, err := f.coord.StartTest("prime", nil)
	require.NoError(t, err)

	_, err = f.coord.StartTest("matrix", nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, session.ErrAlreadyRunning))
	assert.Equal(t, id, f.coord.Status(context.Background()).TestID)

	close(w.release)
	wait(t, f.coord)
}

func TestConcurrentStartAdmitsOne(t *testing.T) {
	w := &gatedWorkload{release: make(chan struct{})}
	f := newFixture(t, gated(w))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.coord.StartTest("prime", nil); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)

	close(w.release)
	wait(t, f.coord)
}

func TestConcurrentStartRejectionsNameTheWinner(t *testing.T) {
	w := &gatedWorkload{release: make(chan struct{})}
	f := newFixture(t, gated(w))

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		acceptedID string
		rejected   []any
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := f.coord.StartTest("prime", nil)
			if err == nil {
				assert.True(t, f.coord.Running())
				assert.Equal(t, id, f.coord.Status(context.Background()).TestID)
			}
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				acceptedID = id
				return
			}
			var appErr errors.Error
			if assert.True(t, errors.As(err, &appErr)) {
				assert.Equal(t, session.ErrAlreadyRunning, appErr.Code())
				rejected = append(rejected, appErr.GetData())
			}
		}()
	}
	wg.Wait()

	require.NotEmpty(t, acceptedID)
	require.Len(t, rejected, 31)
	for _, data := range rejected {
		assert.Equal(t, acceptedID, data)
	}

	close(w.release)
	wait(t, f.coord)
}

func TestInvalidKindRejectedBeforeSampling(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.StartTest("quantum", nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, session.ErrInvalidKind))
	assert.False(t, f.sampler.Running())
	assert.False(t, f.coord.Running())
}

func TestInvalidParamsRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.StartTest("matrix", map[string]any{"size": "huge"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, workload.ErrInvalidParams))
	assert.False(t, f.coord.Running())
}

func TestWorkerFailureProducesFailedSession(t *testing.T) {
	w := &gatedWorkload{release: make(chan struct{}), err: errors.New().WithMessage(errors.ErrWorkerFailure, "chunk 3 exploded")}
	f := newFixture(t, gated(w))

	id, err := f.coord.StartTest("prime", nil)
	require.NoError(t, err)
	close(w.release)
	wait(t, f.coord)

	assert.False(t, f.sampler.Running())

	res, err := f.coord.Result(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateFailed, res.Status)
	assert.Contains(t, res.Error, "chunk 3 exploded")
	assert.Nil(t, res.Result)
	assert.NotNil(t, res.Monitoring)

	_, err = f.coord.StartTest("prime", nil)
	require.NoError(t, err)
	wait(t, f.coord)
}

func TestPanickingWorkloadIsContained(t *testing.T) {
	w := &gatedWorkload{release: make(chan struct{}), panics: true}
	f := newFixture(t, gated(w))

	id, err := f.coord.StartTest("prime", nil)
	require.NoError(t, err)
	close(w.release)
	wait(t, f.coord)

	res, err := f.coord.Result(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateFailed, res.Status)
	assert.Contains(t, res.Error, "boom")
	assert.False(t, f.sampler.Running())
}

func TestSamplerStoppedAfterCompletion(t *testing.T) {
	w := &gatedWorkload{release: make(chan struct{})}
	f := newFixture(t, gated(w))

	_, err := f.coord.StartTest("prime", nil)
	require.NoError(t, err)
	close(w.release)
	wait(t, f.coord)

	frozen := f.sampler.History().Len()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, f.sampler.History().Len())

	_, err = f.coord.CurrentMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, frozen, f.sampler.History().Len())
}

func TestRealWorkloadRun(t *testing.T) {
	f := newFixture(t)

	id, err := f.coord.StartTest("monte-carlo", map[string]any{"iterations": 20000})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "monte_carlo_"))
	wait(t, f.coord)

	res, err := f.coord.Result(id)
	require.NoError(t, err)
	require.Equal(t, session.StateCompleted, res.Status, res.Error)
	require.NotNil(t, res.Result.MonteCarlo)
	assert.Equal(t, 20000, res.Result.MonteCarlo.SampledIterations)
}

func TestResultNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Result("prime_20240101_000000_deadbeef")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, session.ErrNotFound))
}

func TestArchiveIsBounded(t *testing.T) {
	w := &gatedWorkload{release: make(chan struct{})}
	close(w.release)
	f := newFixture(t, gated(w))

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := f.coord.StartTest("prime", nil)
		require.NoError(t, err)
		wait(t, f.coord)
		ids = append(ids, id)
	}

	results := f.coord.Results()
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, ids[i+2], r.TestID)
	}

	_, err := f.coord.Result(ids[0])
	assert.True(t, errors.HasCode(err, session.ErrNotFound))

	f.coord.ClearResults()
	assert.Empty(t, f.coord.Results())
	assert.Nil(t, f.coord.Status(context.Background()).Last)
}

func TestCollectorReceivesSessions(t *testing.T) {
	w := &gatedWorkload{release: make(chan struct{})}
	close(w.release)
	rec := &recordingCollector{}
	f := newFixture(t, gated(w), session.WithCollector(rec))

	id, err := f.coord.StartTest("prime", nil)
	require.NoError(t, err)
	wait(t, f.coord)

	rec.mu.Lock()
	require.Len(t, rec.sessions, 1)
	assert.Equal(t, id, rec.sessions[0].TestID)
	assert.Equal(t, "completed", rec.sessions[0].Status)
	rec.mu.Unlock()

	require.NoError(t, f.coord.Close())
	assert.True(t, rec.closed)
}

func TestExportHistoryAndSystemInfo(t *testing.T) {
	w := &gatedWorkload{release: make(chan struct{})}
	f := newFixture(t, gated(w))

	_, err := f.coord.StartTest("prime", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.sampler.History().Len() >= 1 }, time.Second, time.Millisecond)
	close(w.release)
	wait(t, f.coord)

	var buf bytes.Buffer
	require.NoError(t, f.coord.ExportHistory(&buf))

	var doc struct {
		TotalSamples int `json:"total_samples"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, f.sampler.History().Len(), doc.TotalSamples)

	info, err := f.coord.SystemInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, info.CPU.LogicalCores)
}

func TestInvalidConfig(t *testing.T) {
	sampler, err := telemetry.NewSampler(fakeProvider{}, telemetry.DefaultConfig())
	require.NoError(t, err)

	cfg := session.DefaultConfig()
	cfg.ResultsLimit = 0
	_, err = session.New(sampler, cfg)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, session.ErrInvalidConfig))
}
