package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"codeberg.org/mutker/cpubench/internal/config"
	"codeberg.org/mutker/cpubench/internal/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cpubench.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "debug"
workers = 4
sample_interval = "2s"
test_sample_interval = "250ms"
history_size = 200
results_limit = 10

[prime]
max_number = 5000

[sorting]
array_size = 2048
parallel_depth = 2

[metrics]
enabled = true
db_path = "/path/to/metrics.db"
`)
	t.Setenv("CPUBENCH_CONFIG", configPath)

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 4, cfg.EffectiveWorkers())
	assert.Equal(t, 2*time.Second, cfg.SampleInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.TestSampleInterval)
	assert.Equal(t, 200, cfg.HistorySize)
	assert.Equal(t, 10, cfg.ResultsLimit)
	assert.Equal(t, 5000, cfg.Prime.MaxNumber)
	assert.Equal(t, 2048, cfg.Sorting.ArraySize)
	assert.Equal(t, 2, cfg.Sorting.ParallelDepth)
	assert.Equal(t, config.DefaultSortParallelThreshold, cfg.Sorting.ParallelThreshold)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/path/to/metrics.db", cfg.Metrics.DBPath)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CPUBENCH_CONFIG", "")

	cfg, err := config.Load(nil)
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, runtime.NumCPU(), cfg.EffectiveWorkers())
	assert.Equal(t, config.DefaultSampleInterval, cfg.SampleInterval)
	assert.Equal(t, config.DefaultTestSampleInterval, cfg.TestSampleInterval)
	assert.Equal(t, config.DefaultHistorySize, cfg.HistorySize)
	assert.Equal(t, config.DefaultResultsLimit, cfg.ResultsLimit)
	assert.Equal(t, 1000000, cfg.Prime.MaxNumber)
	assert.Equal(t, 1000, cfg.Matrix.Size)
	assert.Equal(t, 50000, cfg.Fibonacci.MaxN)
	assert.Equal(t, 100000, cfg.Sorting.ArraySize)
	assert.Equal(t, 10000000, cfg.MonteCarlo.Iterations)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configPath := writeConfig(t, `
This is not a valid TOML file
`)
	t.Setenv("CPUBENCH_CONFIG", configPath)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "invalid"
`)
	t.Setenv("CPUBENCH_CONFIG", configPath)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestInvalidInterval(t *testing.T) {
	configPath := writeConfig(t, `
sample_interval = "0s"
`)
	t.Setenv("CPUBENCH_CONFIG", configPath)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInterval))
}

func TestNegativeSortingThreshold(t *testing.T) {
	configPath := writeConfig(t, `
[sorting]
parallel_threshold = -1
`)
	t.Setenv("CPUBENCH_CONFIG", configPath)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "parallel_threshold")
}

func TestEnvOverridesFile(t *testing.T) {
	configPath := writeConfig(t, `
history_size = 300
`)
	t.Setenv("CPUBENCH_CONFIG", configPath)
	t.Setenv("CPUBENCH_HISTORY_SIZE", "42")

	cfg, err := config.Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.HistorySize)
}

func TestFlagsOverrideFile(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "error"
workers = 2
`)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", configPath, "--log-level", "debug", "--test-sample-interval", "100ms"}))

	cfg, err := config.Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
	assert.Equal(t, 2, cfg.Workers, "Unchanged flag must not override file value")
	assert.Equal(t, 100*time.Millisecond, cfg.TestSampleInterval)
}

func TestWithConfigFile(t *testing.T) {
	configPath := writeConfig(t, `
results_limit = 7
`)

	cfg, err := config.Load(nil, config.WithConfigFile(configPath))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.ResultsLimit)
}
