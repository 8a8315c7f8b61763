package config

import (
	"os"
	"runtime"
	"strings"
	"time"

	"codeberg.org/mutker/cpubench/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel              = "info"
	DefaultSampleInterval        = time.Second
	DefaultTestSampleInterval    = 500 * time.Millisecond
	DefaultHistorySize           = 1000
	DefaultResultsLimit          = 50
	DefaultSortParallelDepth     = 3
	DefaultSortParallelThreshold = 1000
	DefaultMetricsDBPath         = "/var/lib/cpubench/metrics.db"
	DefaultMetricsBatchSize      = 20
	DefaultMetricsBatchTimeout   = 5 * time.Second

	configName       = "cpubench"
	configType       = "toml"
	configEnvVar     = "CPUBENCH_CONFIG"
	defaultEnvPrefix = "CPUBENCH"
)

// Config holds every tunable of the benchmark service.
type Config struct {
	LogLevel           string        `mapstructure:"log_level"`
	Workers            int           `mapstructure:"workers"`
	SampleInterval     time.Duration `mapstructure:"sample_interval"`
	TestSampleInterval time.Duration `mapstructure:"test_sample_interval"`
	HistorySize        int           `mapstructure:"history_size"`
	ResultsLimit       int           `mapstructure:"results_limit"`

	Sorting    SortingConfig    `mapstructure:"sorting"`
	Prime      PrimeConfig      `mapstructure:"prime"`
	Matrix     MatrixConfig     `mapstructure:"matrix"`
	Fibonacci  FibonacciConfig  `mapstructure:"fibonacci"`
	MonteCarlo MonteCarloConfig `mapstructure:"monte_carlo"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type PrimeConfig struct {
	MaxNumber int `mapstructure:"max_number"`
}

type MatrixConfig struct {
	Size int `mapstructure:"size"`
}

type FibonacciConfig struct {
	MaxN int `mapstructure:"max_n"`
}

type SortingConfig struct {
	ArraySize         int `mapstructure:"array_size"`
	ParallelDepth     int `mapstructure:"parallel_depth"`
	ParallelThreshold int `mapstructure:"parallel_threshold"`
}

type MonteCarloConfig struct {
	Iterations int `mapstructure:"iterations"`
}

type MetricsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DBPath       string        `mapstructure:"db_path"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// EffectiveWorkers resolves the configured worker count, 0 meaning one per logical core.
func (c *Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// RegisterFlags adds the global configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Int("workers", 0, "Worker pool size (0 = number of logical cores)")
	fs.Duration("sample-interval", DefaultSampleInterval, "Interval between general telemetry samples")
	fs.Duration("test-sample-interval", DefaultTestSampleInterval, "Interval between telemetry samples during a test")
	fs.Int("history-size", DefaultHistorySize, "Maximum number of telemetry samples kept in memory")
	fs.Bool("metrics", false, "Record samples and results to the SQLite metrics database")
	fs.String("metrics-db", DefaultMetricsDBPath, "Path to the metrics database")
}

var flagKeys = map[string]string{
	"log-level":            "log_level",
	"workers":              "workers",
	"sample-interval":      "sample_interval",
	"test-sample-interval": "test_sample_interval",
	"history-size":         "history_size",
	"metrics":              "metrics.enabled",
	"metrics-db":           "metrics.db_path",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("workers", 0)
	v.SetDefault("sample_interval", DefaultSampleInterval)
	v.SetDefault("test_sample_interval", DefaultTestSampleInterval)
	v.SetDefault("history_size", DefaultHistorySize)
	v.SetDefault("results_limit", DefaultResultsLimit)
	v.SetDefault("sorting.array_size", 100000)
	v.SetDefault("sorting.parallel_depth", DefaultSortParallelDepth)
	v.SetDefault("sorting.parallel_threshold", DefaultSortParallelThreshold)
	v.SetDefault("prime.max_number", 1000000)
	v.SetDefault("matrix.size", 1000)
	v.SetDefault("fibonacci.max_n", 50000)
	v.SetDefault("monte_carlo.iterations", 10000000)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.db_path", DefaultMetricsDBPath)
	v.SetDefault("metrics.batch_size", DefaultMetricsBatchSize)
	v.SetDefault("metrics.batch_timeout", DefaultMetricsBatchTimeout)
}

// Load reads configuration from defaults, the config file, the environment
// and finally fs (when non-nil), later sources overriding earlier ones.
func Load(fs *pflag.FlagSet, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(defaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := o.configPath
	if path == "" && fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			path = f.Value.String()
		}
	}
	if path == "" {
		path = os.Getenv(configEnvVar)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errFactory.Wrap(errors.ErrBindFlags, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks ranges and enumerations that viper cannot express.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.SampleInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.SampleInterval.String())
	}
	if c.TestSampleInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.TestSampleInterval.String())
	}
	if c.Workers < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "workers must not be negative")
	}
	if c.HistorySize <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "history_size must be positive")
	}
	if c.ResultsLimit <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "results_limit must be positive")
	}
	if c.Sorting.ParallelDepth < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "sorting.parallel_depth must not be negative")
	}
	if c.Sorting.ParallelThreshold < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "sorting.parallel_threshold must not be negative")
	}
	if c.Metrics.Enabled && c.Metrics.DBPath == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "metrics.db_path is required when metrics are enabled")
	}

	return nil
}
