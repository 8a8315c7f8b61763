package metrics_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/cpubench/internal/errors"
	"codeberg.org/mutker/cpubench/internal/logger"
	"codeberg.org/mutker/cpubench/internal/metrics"
	"codeberg.org/mutker/cpubench/internal/telemetry"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func count(t *testing.T, path, table string) int {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func enabledConfig(t *testing.T) metrics.Config {
	cfg := metrics.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = filepath.Join(t.TempDir(), "data", "metrics.db")
	cfg.BatchSize = 3
	cfg.BatchTimeout = time.Hour
	return cfg
}

func TestDisabledServiceIsNoop(t *testing.T) {
	c, err := metrics.NewService(metrics.DefaultConfig(), logger.Nop())
	require.NoError(t, err)
	assert.False(t, c.Enabled())
	assert.NoError(t, c.RecordSample(context.Background(), telemetry.Sample{}))
	assert.NoError(t, c.RecordSession(context.Background(), nil))
	assert.NoError(t, c.Close())
}

func TestInvalidConfig(t *testing.T) {
	cfg := metrics.Config{Enabled: true}
	_, err := metrics.NewService(cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidDBPath))
}

func TestRecordSamplesFlushesOnClose(t *testing.T) {
	cfg := enabledConfig(t)
	c, err := metrics.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	require.True(t, c.Enabled())

	ctx := context.Background()
	temp := 51.5
	for i := 0; i < 4; i++ {
		s := telemetry.Sample{Timestamp: time.Now(), CPUPercent: float64(i * 10), MemPercent: 30, MemTotalGB: 16}
		if i%2 == 0 {
			s.TemperatureC = &temp
		}
		require.NoError(t, c.RecordSample(ctx, s))
	}

	// the first batch of three is already on disk
	assert.Equal(t, 3, count(t, cfg.DBPath, "samples"))

	require.NoError(t, c.Close())
	assert.Equal(t, 4, count(t, cfg.DBPath, "samples"))
}

func TestRecordSession(t *testing.T) {
	cfg := enabledConfig(t)
	c, err := metrics.NewService(cfg, logger.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	err = c.RecordSession(ctx, &metrics.SessionRecord{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidMetrics))

	now := time.Now()
	require.NoError(t, c.RecordSession(ctx, &metrics.SessionRecord{
		TestID:               "prime_20240501_120000_abcdef12",
		Kind:                 "prime",
		Status:               "completed",
		StartedAt:            now.Add(-time.Second),
		FinishedAt:           now,
		ExecutionTimeSeconds: 1,
		Throughput:           1000,
		ThroughputUnit:       "primes/s",
		CPUCoresUsed:         4,
		SampleCount:          2,
	}))
	require.NoError(t, c.Close())

	assert.Equal(t, 1, count(t, cfg.DBPath, "sessions"))
}

func TestRecordAfterClose(t *testing.T) {
	c, err := metrics.NewService(enabledConfig(t), logger.Nop())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	err = c.RecordSample(context.Background(), telemetry.Sample{Timestamp: time.Now()})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrRepositoryClosed))
}

func TestRecordCanceledContext(t *testing.T) {
	c, err := metrics.NewService(enabledConfig(t), logger.Nop())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = c.RecordSample(ctx, telemetry.Sample{Timestamp: time.Now()})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrOperationTimeout))
}

func TestSchemaIsReusedAcrossOpens(t *testing.T) {
	cfg := enabledConfig(t)
	cfg.BatchSize = 0

	c, err := metrics.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, c.RecordSample(context.Background(), telemetry.Sample{Timestamp: time.Now()}))
	require.NoError(t, c.Close())

	c, err = metrics.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.Equal(t, 1, count(t, cfg.DBPath, "samples"))
}

func TestSchemaMigrationBacksUpOldVersion(t *testing.T) {
	cfg := enabledConfig(t)
	c, err := metrics.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE schema_versions SET version = ?", metrics.SchemaVersion+100)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	c, err = metrics.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(cfg.DBPath), "backups", "metrics_v*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}
